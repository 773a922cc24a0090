package layers

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/filter"
	"github.com/kylefelipe/satalertas-server/internal/record"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

func viewIDs(c *fakeCatalog, groupID int64) []int64 {
	out, _ := c.ListGroupViewViewIDs(context.Background(), groupID)
	return out
}

func TestReplaceGroupLayers_replacesWholeSet(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.addGroup(2, "PRODES")
	c.addView(20, record.Record{"name": "Prodes"}, "")
	c.addAssoc(sqlcgen.GroupView{GroupID: 2, ViewID: 20})
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	err := svc.ReplaceGroupLayers(context.Background(), 1, []AssociationInput{
		{GroupID: 1, ViewID: 13, ShortName: sp("Cities")},
		{GroupID: 1, ViewID: 10, IsPrimary: bp(true)},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{13, 10}, viewIDs(c, 1))
	assert.Equal(t, []int64{20}, viewIDs(c, 2), "other groups are untouched")

	got, err := svc.ComposeGroupLayers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Cities", got[0].ShortName)
}

func TestReplaceGroupLayers_emptyListClearsGroup(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	require.NoError(t, svc.ReplaceGroupLayers(context.Background(), 1, nil))
	assert.Empty(t, viewIDs(c, 1))

	got, err := svc.ComposeGroupLayers(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaceGroupLayers_validation(t *testing.T) {
	tests := []struct {
		name    string
		groupID int64
		layers  []AssociationInput
	}{
		{name: "missing group", groupID: 0},
		{name: "missing view", groupID: 1, layers: []AssociationInput{{GroupID: 1}}},
		{name: "missing entry group", groupID: 1, layers: []AssociationInput{{ViewID: 10}}},
		{name: "foreign entry", groupID: 1, layers: []AssociationInput{{GroupID: 2, ViewID: 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeCatalog()
			seedDeter(c)
			svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

			err := svc.ReplaceGroupLayers(context.Background(), tt.groupID, tt.layers)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Zero(t, c.calls["InTx"])
			assert.Len(t, viewIDs(c, 1), 4)
		})
	}
}

func TestReplaceGroupLayers_unknownGroup(t *testing.T) {
	c := newFakeCatalog()
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	err := svc.ReplaceGroupLayers(context.Background(), 5, []AssociationInput{{GroupID: 5, ViewID: 1}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestReplaceGroupLayers_failedCreateKeepsOldSet(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.bulkCreateErr = errors.New("connection reset")
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	err := svc.ReplaceGroupLayers(context.Background(), 1, []AssociationInput{{GroupID: 1, ViewID: 13}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStorage), "got %v", err)
	_, _, stage := apperr.Origin(err)
	assert.Equal(t, "tx", stage)
	assert.Equal(t, []int64{10, 11, 12, 13}, viewIDs(c, 1))
}

func TestReplaceGroupLayers_foreignKeyViolation(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.bulkCreateErr = &pgconn.PgError{Code: "23503", Detail: "Key (view_id)=(77) is not present"}
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	err := svc.ReplaceGroupLayers(context.Background(), 1, []AssociationInput{{GroupID: 1, ViewID: 77}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.Len(t, viewIDs(c, 1), 4)
}

func TestApplyEdits_updatesAndReturnsTree(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	var edits []Edit
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": 1, "shortName": "Alerts", "subLayers": [{"id": 3, "name": "by city"}, 2, 3], "unknown": "ignored"},
		{"id": "4", "isPrimary": "true", "cod": 12}
	]`), &edits))

	got, err := svc.ApplyEdits(context.Background(), 1, edits)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 4}, ids(got))
	assert.Equal(t, "Alerts", got[0].ShortName)
	assert.Equal(t, []int64{3, 2}, ids(got[0].SubLayers))
	assert.True(t, got[1].IsPrimary)
	assert.Equal(t, "12", got[1].Cod)
	assert.NotNil(t, got[1].Filter)

	assert.Equal(t, []int64{3, 2}, c.sorted()[0].SubLayers)
}

func TestApplyEdits_nullClearsOverride(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.assocs[3].ShortName = sp("Override")
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	var edits []Edit
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 4, "shortName": null}]`), &edits))

	got, err := svc.ApplyEdits(context.Background(), 1, edits)
	require.NoError(t, err)
	assert.Equal(t, "Municipalities", got[1].ShortName)
	assert.Nil(t, c.sorted()[3].ShortName)
}

func TestApplyEdits_unknownAssociationRollsBack(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.addGroup(2, "PRODES")
	c.addView(20, record.Record{"name": "Prodes"}, "")
	other := c.addAssoc(sqlcgen.GroupView{GroupID: 2, ViewID: 20})
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	_, err := svc.ApplyEdits(context.Background(), 1, []Edit{
		{ID: 1, Fields: map[string]any{"shortName": "first"}},
		{ID: other, Fields: map[string]any{"shortName": "not mine"}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.Nil(t, c.sorted()[0].ShortName, "the first edit is rolled back")
	assert.Nil(t, c.sorted()[4].ShortName)
}

func TestApplyEdits_validation(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	_, err := svc.ApplyEdits(context.Background(), 0, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.ApplyEdits(context.Background(), 1, []Edit{{Fields: map[string]any{"name": "x"}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.ApplyEdits(context.Background(), 1, []Edit{{ID: 1, Fields: map[string]any{"subLayers": "2,3"}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.ApplyEdits(context.Background(), 1, []Edit{{ID: 1, Fields: map[string]any{"isPrimary": "maybe"}}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, c.calls["InTx"])
}

func TestEdit_UnmarshalJSON(t *testing.T) {
	var e Edit
	require.NoError(t, json.Unmarshal([]byte(`{"id": 12, "name": "x", "subLayers": [1]}`), &e))
	assert.Equal(t, int64(12), e.ID)
	assert.NotContains(t, e.Fields, "id")
	assert.Equal(t, "x", e.Fields["name"])

	assert.Error(t, json.Unmarshal([]byte(`{"id": "twelve"}`), &e))
}

func TestSubLayerRefs(t *testing.T) {
	var refs SubLayerRefs
	require.NoError(t, json.Unmarshal([]byte(`[4, {"id": 2}, 4, "7", 0, {"id": 2}]`), &refs))
	assert.Equal(t, SubLayerRefs{4, 2, 7}, refs)

	require.NoError(t, json.Unmarshal([]byte(`null`), &refs))
	assert.Nil(t, refs)

	assert.Error(t, json.Unmarshal([]byte(`{"id": 1}`), &refs))

	got, err := ParseSubLayerRefs([]int64{3, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, SubLayerRefs{3, 1}, got)
}

func TestAddAndRemoveAssociation(t *testing.T) {
	c := newFakeCatalog()
	seedDeter(c)
	c.addView(30, record.Record{"name": "Fire spots"}, "")
	svc := newTestService(c, filter.NewRegistry(nil), DefaultSublayerThreshold)

	a, err := svc.AddAssociation(context.Background(), 1, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.ID)
	assert.Equal(t, int64(30), a.ViewID)
	assert.Contains(t, viewIDs(c, 1), int64(30))

	require.NoError(t, svc.RemoveAssociation(context.Background(), a.ID))
	assert.NotContains(t, viewIDs(c, 1), int64(30))

	err = svc.RemoveAssociation(context.Background(), a.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)

	_, err = svc.AddAssociation(context.Background(), 0, 30)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
