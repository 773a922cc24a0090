package filter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	KindAttribute = "attribute"
	KindCQL       = "cql"
	KindScript    = "script"
)

// Spec declares one strategy in configuration.
type Spec struct {
	// Kind is matched after NormalizeKind.
	Kind    string `toml:"kind" validate:"required,oneof=attribute cql script"`
	Column  string `toml:"column"`
	Op      string `toml:"op"`
	Script  string `toml:"script"`
	Timeout string `toml:"timeout"`
}

// NormalizeKind is the canonical spelling of a strategy kind: trimmed and lower case.
func NormalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// NewRegistryFromSpecs compiles every declared strategy. Invalid declarations are rejected
// here so that a bad script fails startup rather than the first request.
func NewRegistryFromSpecs(specs map[string]Spec) (*Registry, error) {
	builders := make(map[string]Builder, len(specs))
	for code, spec := range specs {
		b, err := newBuilder(spec)
		if err != nil {
			return nil, fmt.Errorf("filter strategy %q: %w", code, err)
		}
		builders[code] = b
	}
	return NewRegistry(builders), nil
}

func newBuilder(spec Spec) (Builder, error) {
	switch NormalizeKind(spec.Kind) {
	case KindAttribute:
		if spec.Column == "" {
			return nil, fmt.Errorf("attribute strategy needs a column")
		}
		return Attribute(spec.Column, spec.Op), nil
	case KindCQL:
		if spec.Column == "" {
			return nil, fmt.Errorf("cql strategy needs a column")
		}
		return CQL(spec.Column), nil
	case KindScript:
		var timeout time.Duration
		if spec.Timeout != "" {
			d, err := time.ParseDuration(spec.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout: %w", err)
			}
			timeout = d
		}
		return NewScript(spec.Script, timeout)
	default:
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}
}

// Attribute filters on a single column against the layer discriminator:
// {col, op, val}.
func Attribute(column, op string) Builder {
	if op == "" {
		op = "="
	}
	return BuilderFunc(func(_ context.Context, args Args) (Expression, error) {
		return Expression{"col": column, "op": op, "val": args.Cod}, nil
	})
}

// CQL renders a GeoServer CQL_FILTER scoped to the owning table. Layers without a
// discriminator are not filtered.
func CQL(column string) Builder {
	return BuilderFunc(func(_ context.Context, args Args) (Expression, error) {
		if args.Cod == "" {
			return Expression{}, nil
		}
		field := column
		if args.TableOwner != "" {
			field = args.TableOwner + "." + column
		}
		value := strings.ReplaceAll(args.Cod, "'", "''")
		return Expression{
			"layers":     args.DefaultView,
			"cql_filter": fmt.Sprintf("%s = '%s'", field, value),
		}, nil
	})
}
