// Package filter resolves the row filter a primary dashboard layer must be drawn with. The
// strategy used is chosen by the group code; groups without a registered strategy get an
// empty filter.
package filter

import (
	"context"
	"fmt"
	"sort"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/wms"
)

// Expression is the filter handed to the map client. Its shape belongs to the strategy that
// built it.
type Expression map[string]any

// Args are the inputs every strategy receives.
type Args struct {
	DefaultView      string // workspace:viewName
	ProjectWorkspace string // <project>_<workspace>
	Cod              string
	TableOwner       string
	IsPrimary        bool
}

type Builder interface {
	Build(ctx context.Context, args Args) (Expression, error)
}

type BuilderFunc func(ctx context.Context, args Args) (Expression, error)

func (f BuilderFunc) Build(ctx context.Context, args Args) (Expression, error) {
	return f(ctx, args)
}

// Registry maps group codes to strategies. It is built once at startup and read-only after.
type Registry struct {
	builders map[string]Builder
}

func NewRegistry(builders map[string]Builder) *Registry {
	m := make(map[string]Builder, len(builders))
	for code, b := range builders {
		if b != nil {
			m[code] = b
		}
	}
	return &Registry{builders: m}
}

func (r *Registry) Lookup(code string) (Builder, bool) {
	if r == nil {
		return nil, false
	}
	b, ok := r.builders[code]
	return b, ok
}

func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.builders))
	for code := range r.builders {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// GroupContext carries what the resolver needs from the layer's publishing side.
type GroupContext struct {
	Workspace  string
	TableOwner string
}

// LayerContext identifies the layer being filtered.
type LayerContext struct {
	GroupCode string
	ViewName  string
	Cod       string
	IsPrimary bool
}

type Resolver struct {
	registry         *Registry
	projectWorkspace string
}

func NewResolver(registry *Registry, project, workspace string) *Resolver {
	return &Resolver{
		registry:         registry,
		projectWorkspace: fmt.Sprintf("%s_%s", project, workspace),
	}
}

// Resolve builds the filter for layer. A strategy failure is returned as a composition
// failure; the layer must not be rendered unfiltered.
func (r *Resolver) Resolve(ctx context.Context, group GroupContext, layer LayerContext) (Expression, error) {
	b, ok := r.registry.Lookup(layer.GroupCode)
	if !ok {
		return Expression{}, nil
	}

	expr, err := b.Build(ctx, Args{
		DefaultView:      wms.QualifiedName(group.Workspace, layer.ViewName),
		ProjectWorkspace: r.projectWorkspace,
		Cod:              layer.Cod,
		TableOwner:       group.TableOwner,
		IsPrimary:        layer.IsPrimary,
	})
	if err != nil {
		return nil, apperr.Wrap(fmt.Errorf("group %q: %w", layer.GroupCode, err), apperr.KindComposition, "filter", "Resolve", "build")
	}
	if expr == nil {
		expr = Expression{}
	}
	return expr, nil
}
