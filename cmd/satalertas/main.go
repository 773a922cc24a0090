package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kylefelipe/satalertas-server/internal/config"
	"github.com/kylefelipe/satalertas-server/internal/db"
	"github.com/kylefelipe/satalertas-server/internal/filter"
	"github.com/kylefelipe/satalertas-server/internal/httpapi"
	"github.com/kylefelipe/satalertas-server/internal/layers"
	"github.com/kylefelipe/satalertas-server/internal/metrics"
	"github.com/kylefelipe/satalertas-server/internal/wms"
)

var errorLabel = color.New(color.FgRed)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "satalertas [command] [flags]",
		Short:         "SatAlertas dashboard layer service",
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", envOr("SATALERTAS_CONFIG", config.DefaultPath), "Path to the TOML configuration file")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newLayersCmd())
	return root
}

// app is what every command needs once configuration is loaded.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	pool    *db.Pool
	metrics *metrics.Metrics
	layers  *layers.Service
}

func (a *app) Close() {
	a.pool.Close()
}

// bootstrap loads configuration and connects to the database. Without a database URL the
// pool and layer service stay nil; only serve tolerates that.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := httpapi.NewLogger(os.Stdout, cfg.ServiceName, cfg.LogLevel)
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	if cfg.DB.URL == "" {
		return a, nil
	}
	pool, err := db.Open(ctx, cfg.DB.URL, db.Options{
		ConnectAttempts: cfg.DB.ConnectAttempts,
		ConnectDelay:    cfg.DB.ConnectDelayDuration,
		Log:             &log,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool

	registry, err := filter.NewRegistryFromSpecs(cfg.Filters)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.layers = layers.NewService(
		log,
		pool.Queries(),
		layers.QueriesTx(pool.InTx),
		wms.NewFormatter(cfg.Geoserver.BaseURL, cfg.Geoserver.LegendURL),
		filter.NewResolver(registry, cfg.Project, cfg.Geoserver.Workspace),
		a.metrics,
		layers.Options{Tools: cfg.Layers.Tools, SublayerThreshold: cfg.Layers.SublayerThreshold},
	)
	log.Info().Strs("filter_codes", registry.Codes()).Msg("layer service ready")
	return a, nil
}

func (a *app) requireDB() error {
	if a.pool == nil {
		return errors.New("database url is not configured (set [db].url or DATABASE_URL)")
	}
	return nil
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
