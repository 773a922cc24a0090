package layers

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kylefelipe/satalertas-server/internal/filter"
	"github.com/kylefelipe/satalertas-server/internal/record"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
	"github.com/kylefelipe/satalertas-server/internal/wms"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Layer is one composed dashboard layer. The fields tagged for mapstructure come from the
// merged view and association records; the rest are derived during composition.
type Layer struct {
	ID          int64          `mapstructure:"id"`
	GroupID     int64          `mapstructure:"groupId"`
	ViewID      int64          `mapstructure:"viewId"`
	GroupCode   string         `mapstructure:"groupCode"`
	Tools       []string       `mapstructure:"tools"`
	Name        string         `mapstructure:"name"`
	ShortName   string         `mapstructure:"shortName"`
	Description string         `mapstructure:"description"`
	Cod         string         `mapstructure:"cod"`
	IsPrimary   bool           `mapstructure:"isPrimary"`
	IsSublayer  bool           `mapstructure:"isSublayer"`
	SubLayerIDs []int64        `mapstructure:"subLayers"`
	TableName   string         `mapstructure:"tableName"`
	Metadata    map[string]any `mapstructure:"metadata"`
	// Extra keeps any other column so it still reaches the client.
	Extra map[string]any `mapstructure:",remain"`

	ViewName   string              `mapstructure:"-"`
	Workspace  string              `mapstructure:"-"`
	TableOwner string              `mapstructure:"-"`
	LayerData  wms.LayerDescriptor `mapstructure:"-"`
	Legend     wms.Legend          `mapstructure:"-"`
	// Filter is nil for non-primary layers.
	Filter filter.Expression `mapstructure:"-"`
	// SubLayers holds the resolved sublayers; when empty, SubLayerIDs is rendered instead.
	SubLayers []*Layer `mapstructure:"-"`
}

type layerJSON struct {
	ID          int64               `json:"id"`
	GroupID     int64               `json:"groupId"`
	ViewID      int64               `json:"viewId"`
	GroupCode   string              `json:"groupCode"`
	Tools       []string            `json:"tools"`
	Name        string              `json:"name"`
	ShortName   string              `json:"shortName"`
	Description string              `json:"description,omitempty"`
	Cod         string              `json:"cod,omitempty"`
	IsPrimary   bool                `json:"isPrimary"`
	IsSublayer  bool                `json:"isSublayer"`
	SubLayers   any                 `json:"subLayers,omitempty"`
	TableName   string              `json:"tableName,omitempty"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	ViewName    string              `json:"viewName"`
	LayerData   wms.LayerDescriptor `json:"layerData"`
	Legend      wms.Legend          `json:"legend"`
	TableOwner  string              `json:"tableOwner,omitempty"`
	Filter      *filter.Expression  `json:"filter,omitempty"`
}

func (l *Layer) MarshalJSON() ([]byte, error) {
	out := layerJSON{
		ID:          l.ID,
		GroupID:     l.GroupID,
		ViewID:      l.ViewID,
		GroupCode:   l.GroupCode,
		Tools:       l.Tools,
		Name:        l.Name,
		ShortName:   l.ShortName,
		Description: l.Description,
		Cod:         l.Cod,
		IsPrimary:   l.IsPrimary,
		IsSublayer:  l.IsSublayer,
		TableName:   l.TableName,
		Metadata:    l.Metadata,
		ViewName:    l.ViewName,
		LayerData:   l.LayerData,
		Legend:      l.Legend,
		TableOwner:  l.TableOwner,
	}
	if out.Tools == nil {
		out.Tools = []string{}
	}
	switch {
	case len(l.SubLayers) > 0:
		out.SubLayers = l.SubLayers
	case len(l.SubLayerIDs) > 0:
		out.SubLayers = l.SubLayerIDs
	}
	if l.Filter != nil {
		f := l.Filter
		out.Filter = &f
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	if len(l.Extra) == 0 {
		return b, nil
	}

	keys := make([]string, 0, len(l.Extra))
	for k := range l.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := escapePath(k)
		if gjson.GetBytes(b, path).Exists() {
			continue
		}
		if b, err = sjson.SetBytes(b, path, l.Extra[k]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// nested returns the copy placed under a primary layer. Sublayers never carry their own
// resolved sublayers, which keeps the tree two levels deep.
func (l *Layer) nested() *Layer {
	cp := *l
	cp.SubLayers = nil
	return &cp
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`, ":", `\:`)

func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

// Association is one raw group-view row, optionally with its view record attached.
type Association struct {
	ID          int64         `json:"id"`
	GroupID     int64         `json:"groupId"`
	ViewID      int64         `json:"viewId"`
	Name        *string       `json:"name"`
	ShortName   *string       `json:"shortName"`
	Description *string       `json:"description"`
	Cod         *string       `json:"cod"`
	IsPrimary   *bool         `json:"isPrimary"`
	IsSublayer  *bool         `json:"isSublayer"`
	SubLayers   []int64       `json:"subLayers"`
	View        record.Record `json:"view,omitempty"`
}

func toAssociation(gv sqlcgen.GroupView) Association {
	return Association{
		ID:          gv.ID,
		GroupID:     gv.GroupID,
		ViewID:      gv.ViewID,
		Name:        gv.Name,
		ShortName:   gv.ShortName,
		Description: gv.Description,
		Cod:         gv.Cod,
		IsPrimary:   gv.IsPrimary,
		IsSublayer:  gv.IsSublayer,
		SubLayers:   gv.SubLayers,
	}
}

// SubLayerRefs is a list of referenced layer ids. Clients may send plain ids or the layer
// objects themselves; either way the list is de-duplicated keeping first occurrences.
type SubLayerRefs []int64

func (s *SubLayerRefs) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	refs, err := ParseSubLayerRefs(raw)
	if err != nil {
		return err
	}
	*s = refs
	return nil
}

// ParseSubLayerRefs reads a decoded JSON value (null, or an array of ids or {id} objects).
func ParseSubLayerRefs(v any) (SubLayerRefs, error) {
	if v == nil {
		return nil, nil
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []int64:
		items = make([]any, len(t))
		for i, id := range t {
			items[i] = id
		}
	default:
		return nil, fmt.Errorf("subLayers must be a list, got %T", v)
	}

	seen := make(map[int64]struct{}, len(items))
	out := make(SubLayerRefs, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			item = obj["id"]
		}
		id, err := cast.ToInt64E(item)
		if err != nil {
			return nil, err
		}
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
