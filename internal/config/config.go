// Package config loads the service configuration from a TOML file, an optional .env file and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/kylefelipe/satalertas-server/internal/filter"
)

// SupportedFormat is the range of config file format versions this build understands.
const SupportedFormat = "^1"

const (
	DefaultPath              = "config.toml"
	defaultServiceName       = "satalertas"
	defaultHTTPAddr          = ":8081"
	defaultConnectAttempts   = 5
	defaultConnectDelay      = "500ms"
	defaultSublayerThreshold = 2
)

type DB struct {
	URL             string `toml:"url"`
	ConnectAttempts uint   `toml:"connect_attempts" validate:"gte=1"`
	ConnectDelay    string `toml:"connect_delay"`

	// ConnectDelayDuration is ConnectDelay parsed by Load.
	ConnectDelayDuration time.Duration `toml:"-"`
}

type Geoserver struct {
	BaseURL   string `toml:"base_url" validate:"required,url"`
	LegendURL string `toml:"legend_url" validate:"required"`
	Workspace string `toml:"workspace" validate:"required"`
}

type Layers struct {
	// Tools is copied onto every composed layer.
	Tools []string `toml:"tools"`
	// SublayerThreshold of -1 resolves sublayers for every group.
	SublayerThreshold int `toml:"sublayer_threshold" validate:"gte=-1,ne=0"`
}

type Config struct {
	FormatVersion string   `toml:"format_version" validate:"required"`
	ServiceName   string   `toml:"service_name" validate:"required"`
	HTTPAddr      string   `toml:"http_addr" validate:"required"`
	LogLevel      string   `toml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	CORSOrigins   []string `toml:"cors_origins"`
	Project       string   `toml:"project" validate:"required"`

	DB        DB                     `toml:"db"`
	Geoserver Geoserver              `toml:"geoserver"`
	Layers    Layers                 `toml:"layers"`
	Filters   map[string]filter.Spec `toml:"filters" validate:"dive"`
}

// Default returns the values used for keys the file leaves out.
func Default() Config {
	return Config{
		ServiceName: defaultServiceName,
		HTTPAddr:    defaultHTTPAddr,
		LogLevel:    "info",
		DB: DB{
			ConnectAttempts: defaultConnectAttempts,
			ConnectDelay:    defaultConnectDelay,
		},
		Layers: Layers{SublayerThreshold: defaultSublayerThreshold},
	}
}

// Load reads path over the defaults, applies environment overrides and validates the
// result. A .env file next to the working directory is loaded first when present; variables
// already set in the environment win over it.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := Parse(string(content), &cfg); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes TOML content into cfg. Keys the document does not set keep cfg's values;
// unknown keys are rejected.
func Parse(content string, cfg *Config) error {
	md, err := toml.Decode(content, cfg)
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

var envOverrides = []struct {
	key string
	set func(*Config, string)
}{
	{"HTTP_ADDR", func(c *Config, v string) { c.HTTPAddr = v }},
	{"LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }},
	{"DATABASE_URL", func(c *Config, v string) { c.DB.URL = v }},
	{"GEOSERVER_URL", func(c *Config, v string) { c.Geoserver.BaseURL = v }},
	{"GEOSERVER_LEGEND_URL", func(c *Config, v string) { c.Geoserver.LegendURL = v }},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			o.set(cfg, v)
		}
	}
}

// Validate checks cfg and fills derived fields.
func Validate(cfg *Config) error {
	if err := checkFormatVersion(cfg.FormatVersion); err != nil {
		return err
	}
	for code, spec := range cfg.Filters {
		spec.Kind = filter.NormalizeKind(spec.Kind)
		cfg.Filters[code] = spec
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}

	d, err := time.ParseDuration(cfg.DB.ConnectDelay)
	if err != nil {
		return fmt.Errorf("db.connect_delay: %w", err)
	}
	cfg.DB.ConnectDelayDuration = d

	if _, err := filter.NewRegistryFromSpecs(cfg.Filters); err != nil {
		return err
	}
	return nil
}

func checkFormatVersion(raw string) error {
	if raw == "" {
		return errors.New("format_version is required")
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("format_version %q: %w", raw, err)
	}
	constraint, err := semver.NewConstraint(SupportedFormat)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("unsupported config file format version %s (want %s)", raw, SupportedFormat)
	}
	return nil
}
