// Package layers composes a group's dashboard layer tree from its view associations and
// reconciles edits of that tree back into association rows.
package layers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/filter"
	"github.com/kylefelipe/satalertas-server/internal/metrics"
	"github.com/kylefelipe/satalertas-server/internal/record"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
	"github.com/kylefelipe/satalertas-server/internal/wms"
)

const (
	component = "layers"

	// DefaultSublayerThreshold is the working-list length a group must exceed before sublayer
	// references are resolved.
	DefaultSublayerThreshold = 2

	// ResolveAllSublayers disables the length gate.
	ResolveAllSublayers = -1
)

// Store is the read side of the layer catalog. *sqlcgen.Queries satisfies it.
type Store interface {
	GetGroup(ctx context.Context, id int64) (sqlcgen.Group, error)
	ListGroupViewRecords(ctx context.Context, groupID int64) ([]record.Record, error)
	GetViewRecord(ctx context.Context, viewID int64) (record.Record, error)
	GetRegisteredView(ctx context.Context, viewID int64) (sqlcgen.RegisteredView, error)
	ListGroupViews(ctx context.Context) ([]sqlcgen.GroupView, error)
	ListGroupViewViewIDs(ctx context.Context, groupID int64) ([]int64, error)
	ListViewRecordsNotIn(ctx context.Context, excluded []int64) ([]record.Record, error)
	CreateGroupView(ctx context.Context, groupID, viewID int64) (sqlcgen.GroupView, error)
	DeleteGroupView(ctx context.Context, id int64) (int64, error)
}

type Options struct {
	// Tools is the static tool list attached to every layer.
	Tools []string
	// SublayerThreshold is the working-list length a group must exceed before sublayer
	// references are resolved. Zero selects DefaultSublayerThreshold; a negative value
	// resolves them for every group.
	SublayerThreshold int
}

type Service struct {
	log       zerolog.Logger
	store     Store
	tx        Transactor
	formatter wms.Formatter
	filters   *filter.Resolver
	metrics   *metrics.Metrics
	validate  *validator.Validate
	opts      Options
}

func NewService(log zerolog.Logger, store Store, tx Transactor, formatter wms.Formatter, filters *filter.Resolver, m *metrics.Metrics, opts Options) *Service {
	switch {
	case opts.SublayerThreshold == 0:
		opts.SublayerThreshold = DefaultSublayerThreshold
	case opts.SublayerThreshold < 0:
		opts.SublayerThreshold = ResolveAllSublayers
	}
	return &Service{
		log:       log,
		store:     store,
		tx:        tx,
		formatter: formatter,
		filters:   filters,
		metrics:   m,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
	}
}

func composeErr(err error, kind apperr.Kind, stage string) error {
	return apperr.Wrap(err, kind, component, "ComposeGroupLayers", stage)
}

// ComposeGroupLayers builds the top-level layer list of a group. Associations are enriched
// one at a time in ascending id order; any failure aborts the whole composition.
func (s *Service) ComposeGroupLayers(ctx context.Context, groupID int64) (out []*Layer, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveComposition(err, len(out), time.Since(start))
	}()

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, composeErr(apperr.FromStorage(component, "GetGroup", err, fmt.Sprintf("group %d", groupID)), apperr.KindStorage, "group")
	}

	assocs, err := s.store.ListGroupViewRecords(ctx, groupID)
	if err != nil {
		return nil, composeErr(apperr.Storage(component, "ListGroupViewRecords", err), apperr.KindStorage, "associations")
	}
	if len(assocs) == 0 {
		return []*Layer{}, nil
	}

	working := make([]*Layer, 0, len(assocs))
	for _, assoc := range assocs {
		l, err := s.composeLayer(ctx, group.Code, assoc)
		if err != nil {
			return nil, err
		}
		working = append(working, l)
	}

	if len(working) > s.opts.SublayerThreshold {
		resolveSublayers(working)
	}

	out = make([]*Layer, 0, len(working))
	for _, l := range working {
		if !l.IsSublayer {
			out = append(out, l)
		}
	}

	s.log.Debug().
		Int64("group_id", groupID).
		Int("associations", len(assocs)).
		Int("layers", len(out)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("composed group layers")
	return out, nil
}

func (s *Service) composeLayer(ctx context.Context, groupCode string, assoc record.Record) (*Layer, error) {
	viewID, ok := assoc.Int64("viewId")
	if !ok || viewID <= 0 {
		id, _ := assoc.Int64("id")
		return nil, composeErr(fmt.Errorf("association %d has no view", id), apperr.KindComposition, "association")
	}

	view, err := s.store.GetViewRecord(ctx, viewID)
	if err != nil {
		return nil, composeErr(apperr.FromStorage(component, "GetViewRecord", err, fmt.Sprintf("view %d", viewID)), apperr.KindStorage, "view")
	}
	if err := hoistTableName(view); err != nil {
		return nil, composeErr(fmt.Errorf("view %d: %w", viewID, err), apperr.KindComposition, "table_name")
	}
	if err := spreadMetadata(view); err != nil {
		return nil, composeErr(fmt.Errorf("view %d: %w", viewID, err), apperr.KindComposition, "metadata")
	}

	base := record.Record{"groupCode": groupCode, "tools": append([]string(nil), s.opts.Tools...)}
	merged := record.Merge(base, record.Compact(view), record.Compact(assoc))

	l, err := decodeLayer(merged)
	if err != nil {
		return nil, composeErr(fmt.Errorf("view %d: %w", viewID, err), apperr.KindComposition, "decode")
	}
	l.ViewName = fmt.Sprintf("view%d", l.ViewID)

	reg, err := s.store.GetRegisteredView(ctx, l.ViewID)
	if err != nil {
		return nil, composeErr(apperr.FromStorage(component, "GetRegisteredView", err, fmt.Sprintf("registered view for view %d", l.ViewID)), apperr.KindStorage, "registered_view")
	}
	l.Workspace = reg.Workspace

	l.LayerData = s.formatter.LayerData([]string{wms.QualifiedName(l.Workspace, l.ViewName)}, wms.Options{Geoservice: "wms"})
	l.Legend = s.formatter.Legend(l.Name, l.Workspace, l.ViewName)
	if l.ShortName == "" {
		l.ShortName = l.Name
	}

	if l.IsPrimary {
		l.TableOwner = l.TableName
		l.Filter, err = s.filters.Resolve(ctx,
			filter.GroupContext{Workspace: l.Workspace, TableOwner: l.TableOwner},
			filter.LayerContext{GroupCode: groupCode, ViewName: l.ViewName, Cod: l.Cod, IsPrimary: true},
		)
		if err != nil {
			return nil, composeErr(err, apperr.KindComposition, "filter")
		}
	}
	return l, nil
}

func decodeLayer(r record.Record) (*Layer, error) {
	var l Layer
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &l,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return nil, err
	}
	return &l, nil
}

// hoistTableName moves the data set's "table_name" format value onto the view as tableName
// and drops the raw data set document.
func hoistTableName(view record.Record) error {
	raw, ok := view["dataSet"]
	delete(view, "dataSet")
	if !ok || raw == nil {
		return nil
	}

	var doc string
	switch v := raw.(type) {
	case string:
		doc = v
	case []byte:
		doc = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		doc = string(b)
	}
	if !gjson.Valid(doc) {
		return errors.New("data set metadata is not valid JSON")
	}

	if name := gjson.Get(doc, `formats.#(key=="table_name").value`); name.Exists() && name.String() != "" {
		view["tableName"] = name.String()
	}
	return nil
}

// layerKeys are the record keys a Layer decodes or derives itself. Metadata never shadows them.
var layerKeys = map[string]struct{}{
	"id": {}, "groupId": {}, "viewId": {}, "groupCode": {}, "tools": {}, "name": {},
	"shortName": {}, "description": {}, "cod": {}, "isPrimary": {}, "isSublayer": {},
	"subLayers": {}, "tableName": {}, "metadata": {}, "dataSet": {}, "viewName": {},
	"workspace": {}, "tableOwner": {}, "layerData": {}, "legend": {}, "filter": {},
}

// spreadMetadata copies the keys of the view's metadata document onto the view record, where
// they end up in Layer.Extra. Columns already on the view win.
func spreadMetadata(view record.Record) error {
	var doc []byte
	switch v := view["metadata"].(type) {
	case map[string]any:
		spreadKeys(view, v)
		return nil
	case string:
		doc = []byte(v)
	case []byte:
		doc = v
	default:
		return nil
	}

	if !gjson.ValidBytes(doc) {
		return errors.New("view metadata is not valid JSON")
	}
	if !gjson.ParseBytes(doc).IsObject() {
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(doc, &meta); err != nil {
		return err
	}
	view["metadata"] = meta
	spreadKeys(view, meta)
	return nil
}

func spreadKeys(view, meta map[string]any) {
	for k, v := range meta {
		if _, reserved := layerKeys[k]; reserved {
			continue
		}
		if _, exists := view[k]; exists {
			continue
		}
		view[k] = v
	}
}

// resolveSublayers replaces the sublayer id list of every primary layer with the layers it
// references. Ids with no matching layer are dropped; a primary whose ids all miss keeps its
// id list.
func resolveSublayers(working []*Layer) {
	byID := make(map[int64]*Layer, len(working))
	for _, l := range working {
		if _, dup := byID[l.ID]; !dup {
			byID[l.ID] = l
		}
	}

	for _, l := range working {
		if !l.IsPrimary || len(l.SubLayerIDs) == 0 {
			continue
		}
		resolved := make([]*Layer, 0, len(l.SubLayerIDs))
		for _, id := range l.SubLayerIDs {
			if sub, ok := byID[id]; ok {
				resolved = append(resolved, sub.nested())
			}
		}
		if len(resolved) > 0 {
			l.SubLayers = resolved
		}
	}
}

// AvailableLayers lists the views not yet associated with the group.
func (s *Service) AvailableLayers(ctx context.Context, groupID int64) ([]record.Record, error) {
	const op = "AvailableLayers"
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, apperr.FromStorage(component, op, err, fmt.Sprintf("group %d", groupID))
	}
	ids, err := s.store.ListGroupViewViewIDs(ctx, groupID)
	if err != nil {
		return nil, apperr.Storage(component, op, err)
	}
	views, err := s.store.ListViewRecordsNotIn(ctx, ids)
	if err != nil {
		return nil, apperr.Storage(component, op, err)
	}
	for _, v := range views {
		if err := hoistTableName(v); err != nil {
			return nil, apperr.Composition(component, op, err)
		}
	}
	if views == nil {
		views = []record.Record{}
	}
	return views, nil
}

// ListAssociations returns every association with its view attached. Associations whose
// view no longer exists carry no view.
func (s *Service) ListAssociations(ctx context.Context) ([]Association, error) {
	const op = "ListAssociations"
	rows, err := s.store.ListGroupViews(ctx)
	if err != nil {
		return nil, apperr.Storage(component, op, err)
	}
	out := make([]Association, 0, len(rows))
	for _, row := range rows {
		a := toAssociation(row)
		view, err := s.store.GetViewRecord(ctx, row.ViewID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return nil, apperr.Storage(component, op, err)
		default:
			if err := hoistTableName(view); err != nil {
				return nil, apperr.Composition(component, op, err)
			}
			a.View = view
		}
		out = append(out, a)
	}
	return out, nil
}
