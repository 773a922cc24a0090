package layers

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/kylefelipe/satalertas-server/internal/filter"
	"github.com/kylefelipe/satalertas-server/internal/record"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
	"github.com/kylefelipe/satalertas-server/internal/wms"
)

const (
	testGeoserverURL = "https://gs.example/geoserver"
	testLegendURL    = "https://gs.example/geoserver/wms?REQUEST=GetLegendGraphic&LAYER="
)

// fakeCatalog is an in-memory Store and Writer. Records are copied on every read, as a
// database would.
type fakeCatalog struct {
	groups     map[int64]sqlcgen.Group
	views      map[int64]record.Record
	registered map[int64]sqlcgen.RegisteredView
	assocs     []sqlcgen.GroupView
	nextID     int64

	calls map[string]int

	bulkCreateErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		groups:     map[int64]sqlcgen.Group{},
		views:      map[int64]record.Record{},
		registered: map[int64]sqlcgen.RegisteredView{},
		nextID:     1,
		calls:      map[string]int{},
	}
}

func (c *fakeCatalog) addGroup(id int64, code string) {
	c.groups[id] = sqlcgen.Group{ID: id, Code: code, Name: "Group " + code}
}

// addView registers a view published in workspace "geo". tableName, when set, is stored
// in the data set document the way the view query renders it.
func (c *fakeCatalog) addView(id int64, fields record.Record, tableName string) {
	r := record.Record{
		"name":        nil,
		"shortName":   nil,
		"description": nil,
		"cod":         nil,
		"isPrimary":   false,
		"isSublayer":  false,
		"subLayers":   nil,
		"metadata":    nil,
		"dataSet":     nil,
	}
	for k, v := range fields {
		r[k] = v
	}
	if tableName != "" {
		r["dataSet"] = `{"id": 1, "formats": [{"key": "srid", "value": "4674"}, {"key": "table_name", "value": "` + tableName + `"}]}`
	}
	c.views[id] = r
	c.registered[id] = sqlcgen.RegisteredView{ID: id, ViewID: id, Workspace: "geo"}
}

func (c *fakeCatalog) addAssoc(gv sqlcgen.GroupView) int64 {
	if gv.ID == 0 {
		gv.ID = c.nextID
	}
	if gv.ID >= c.nextID {
		c.nextID = gv.ID + 1
	}
	c.assocs = append(c.assocs, gv)
	return gv.ID
}

func (c *fakeCatalog) sorted() []sqlcgen.GroupView {
	out := append([]sqlcgen.GroupView(nil), c.assocs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func assocRecord(gv sqlcgen.GroupView) record.Record {
	r := record.Record{
		"id":          gv.ID,
		"groupId":     gv.GroupID,
		"viewId":      gv.ViewID,
		"name":        nil,
		"shortName":   nil,
		"description": nil,
		"cod":         nil,
		"isPrimary":   nil,
		"isSublayer":  nil,
		"subLayers":   nil,
	}
	setString := func(key string, v *string) {
		if v != nil {
			r[key] = *v
		}
	}
	setString("name", gv.Name)
	setString("shortName", gv.ShortName)
	setString("description", gv.Description)
	setString("cod", gv.Cod)
	if gv.IsPrimary != nil {
		r["isPrimary"] = *gv.IsPrimary
	}
	if gv.IsSublayer != nil {
		r["isSublayer"] = *gv.IsSublayer
	}
	if gv.SubLayers != nil {
		ids := make([]any, len(gv.SubLayers))
		for i, id := range gv.SubLayers {
			ids[i] = id
		}
		r["subLayers"] = ids
	}
	return r
}

func (c *fakeCatalog) GetGroup(_ context.Context, id int64) (sqlcgen.Group, error) {
	c.calls["GetGroup"]++
	g, ok := c.groups[id]
	if !ok {
		return sqlcgen.Group{}, pgx.ErrNoRows
	}
	return g, nil
}

func (c *fakeCatalog) ListGroupViewRecords(_ context.Context, groupID int64) ([]record.Record, error) {
	c.calls["ListGroupViewRecords"]++
	var out []record.Record
	for _, gv := range c.sorted() {
		if gv.GroupID == groupID {
			out = append(out, assocRecord(gv))
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetViewRecord(_ context.Context, viewID int64) (record.Record, error) {
	c.calls["GetViewRecord"]++
	v, ok := c.views[viewID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return record.Merge(v), nil
}

func (c *fakeCatalog) GetRegisteredView(_ context.Context, viewID int64) (sqlcgen.RegisteredView, error) {
	c.calls["GetRegisteredView"]++
	r, ok := c.registered[viewID]
	if !ok {
		return sqlcgen.RegisteredView{}, pgx.ErrNoRows
	}
	return r, nil
}

func (c *fakeCatalog) ListGroupViews(context.Context) ([]sqlcgen.GroupView, error) {
	return c.sorted(), nil
}

func (c *fakeCatalog) ListGroupViewViewIDs(_ context.Context, groupID int64) ([]int64, error) {
	var ids []int64
	for _, gv := range c.sorted() {
		if gv.GroupID == groupID {
			ids = append(ids, gv.ViewID)
		}
	}
	return ids, nil
}

func (c *fakeCatalog) ListViewRecordsNotIn(_ context.Context, excluded []int64) ([]record.Record, error) {
	skip := map[int64]bool{}
	for _, id := range excluded {
		skip[id] = true
	}
	ids := make([]int64, 0, len(c.views))
	for id := range c.views {
		if !skip[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, record.Merge(record.Record{"id": id}, c.views[id]))
	}
	return out, nil
}

func (c *fakeCatalog) CreateGroupView(_ context.Context, groupID, viewID int64) (sqlcgen.GroupView, error) {
	gv := sqlcgen.GroupView{GroupID: groupID, ViewID: viewID}
	gv.ID = c.addAssoc(gv)
	return gv, nil
}

func (c *fakeCatalog) DeleteGroupView(_ context.Context, id int64) (int64, error) {
	for i, gv := range c.assocs {
		if gv.ID == id {
			c.assocs = append(c.assocs[:i], c.assocs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (c *fakeCatalog) DeleteGroupViewsByGroup(_ context.Context, groupID int64) (int64, error) {
	kept := c.assocs[:0]
	var n int64
	for _, gv := range c.assocs {
		if gv.GroupID == groupID {
			n++
			continue
		}
		kept = append(kept, gv)
	}
	c.assocs = kept
	return n, nil
}

func (c *fakeCatalog) BulkCreateGroupViews(_ context.Context, arg []sqlcgen.CreateGroupViewParams) (int64, error) {
	if c.bulkCreateErr != nil {
		return 0, c.bulkCreateErr
	}
	for _, a := range arg {
		c.addAssoc(sqlcgen.GroupView{
			GroupID:     a.GroupID,
			ViewID:      a.ViewID,
			Name:        a.Name,
			ShortName:   a.ShortName,
			Description: a.Description,
			Cod:         a.Cod,
			IsPrimary:   a.IsPrimary,
			IsSublayer:  a.IsSublayer,
			SubLayers:   a.SubLayers,
		})
	}
	return int64(len(arg)), nil
}

func (c *fakeCatalog) UpdateGroupView(_ context.Context, arg sqlcgen.UpdateGroupViewParams) (int64, error) {
	for i := range c.assocs {
		gv := &c.assocs[i]
		if gv.ID != arg.ID || gv.GroupID != arg.GroupID {
			continue
		}
		for col, v := range arg.Set {
			switch col {
			case "name":
				gv.Name = strPtr(v)
			case "short_name":
				gv.ShortName = strPtr(v)
			case "description":
				gv.Description = strPtr(v)
			case "cod":
				gv.Cod = strPtr(v)
			case "is_primary":
				gv.IsPrimary = boolPtr(v)
			case "is_sublayer":
				gv.IsSublayer = boolPtr(v)
			case "sub_layers":
				ids, _ := v.([]int64)
				gv.SubLayers = ids
			}
		}
		return 1, nil
	}
	return 0, nil
}

func strPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func boolPtr(v any) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

// transactor restores the association table when fn fails.
func (c *fakeCatalog) transactor() Transactor {
	return TxFunc(func(_ context.Context, fn func(w Writer) error) error {
		c.calls["InTx"]++
		snapshot := append([]sqlcgen.GroupView(nil), c.assocs...)
		next := c.nextID
		if err := fn(c); err != nil {
			c.assocs = snapshot
			c.nextID = next
			return err
		}
		return nil
	})
}

func newTestService(c *fakeCatalog, reg *filter.Registry, threshold int) *Service {
	return NewService(
		zerolog.Nop(),
		c,
		c.transactor(),
		wms.NewFormatter(testGeoserverURL, testLegendURL),
		filter.NewResolver(reg, "satalertas", "alerts"),
		nil,
		Options{Tools: []string{"info", "opacity"}, SublayerThreshold: threshold},
	)
}

func sp(s string) *string { return &s }

func bp(b bool) *bool { return &b }
