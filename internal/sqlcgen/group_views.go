package sqlcgen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/kylefelipe/satalertas-server/internal/record"
)

// Association and view rows used by the layer composer are returned as records keyed by
// their API field names so unset columns can be told apart from set ones before merging.

const listGroupViewRecords = `-- name: ListGroupViewRecords :many
SELECT gv.id,
       gv.group_id    AS "groupId",
       gv.view_id     AS "viewId",
       gv.name,
       gv.short_name  AS "shortName",
       gv.description,
       gv.cod,
       gv.is_primary  AS "isPrimary",
       gv.is_sublayer AS "isSublayer",
       gv.sub_layers  AS "subLayers"
FROM rel_group_views gv
WHERE gv.group_id = $1
ORDER BY gv.id ASC
`

func (q *Queries) ListGroupViewRecords(ctx context.Context, groupID int64) ([]record.Record, error) {
	rows, err := q.db.Query(ctx, listGroupViewRecords, groupID)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

const viewRecordColumns = `v.name,
       v.short_name  AS "shortName",
       v.description,
       v.cod,
       v.is_primary  AS "isPrimary",
       v.is_sublayer AS "isSublayer",
       v.sub_layers  AS "subLayers",
       v.metadata,
       (
         SELECT json_build_object(
                  'id', ds.id,
                  'formats', COALESCE((
                    SELECT json_agg(json_build_object('key', f.key, 'value', f.value) ORDER BY f.id)
                    FROM data_set_formats f
                    WHERE f.data_set_id = ds.id
                  ), '[]'::json)
                )::text
         FROM data_sets ds
         WHERE ds.id = v.data_set_id
       ) AS "dataSet"`

const getViewRecord = `-- name: GetViewRecord :one
SELECT ` + viewRecordColumns + `
FROM views v
WHERE v.id = $1
`

// GetViewRecord loads a view without its id; the association id is the layer id.
func (q *Queries) GetViewRecord(ctx context.Context, viewID int64) (record.Record, error) {
	rows, err := q.db.Query(ctx, getViewRecord, viewID)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	return record.Record(m), nil
}

const listViewRecordsNotIn = `-- name: ListViewRecordsNotIn :many
SELECT v.id,
       ` + viewRecordColumns + `
FROM views v
WHERE NOT (v.id = ANY($1::bigint[]))
ORDER BY v.id ASC
`

func (q *Queries) ListViewRecordsNotIn(ctx context.Context, excluded []int64) ([]record.Record, error) {
	if excluded == nil {
		excluded = []int64{}
	}
	rows, err := q.db.Query(ctx, listViewRecordsNotIn, excluded)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]record.Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(maps))
	for _, m := range maps {
		out = append(out, record.Record(m))
	}
	return out, nil
}

const listGroupViewViewIDs = `-- name: ListGroupViewViewIDs :many
SELECT view_id
FROM rel_group_views
WHERE group_id = $1
  AND view_id IS NOT NULL
ORDER BY id ASC
`

func (q *Queries) ListGroupViewViewIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, listGroupViewViewIDs, groupID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

const groupViewColumns = `id, group_id, view_id, name, short_name, description, cod, is_primary, is_sublayer, sub_layers`

func scanGroupView(row pgx.Row) (GroupView, error) {
	var i GroupView
	err := row.Scan(
		&i.ID,
		&i.GroupID,
		&i.ViewID,
		&i.Name,
		&i.ShortName,
		&i.Description,
		&i.Cod,
		&i.IsPrimary,
		&i.IsSublayer,
		&i.SubLayers,
	)
	return i, err
}

const listGroupViews = `-- name: ListGroupViews :many
SELECT ` + groupViewColumns + `
FROM rel_group_views
ORDER BY id ASC
`

func (q *Queries) ListGroupViews(ctx context.Context) ([]GroupView, error) {
	rows, err := q.db.Query(ctx, listGroupViews)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GroupView
	for rows.Next() {
		i, err := scanGroupView(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createGroupView = `-- name: CreateGroupView :one
INSERT INTO rel_group_views (group_id, view_id)
VALUES ($1, $2)
RETURNING ` + groupViewColumns + `
`

type CreateGroupViewParams struct {
	GroupID     int64
	ViewID      int64
	Name        *string
	ShortName   *string
	Description *string
	Cod         *string
	IsPrimary   *bool
	IsSublayer  *bool
	SubLayers   []int64
}

func (q *Queries) CreateGroupView(ctx context.Context, groupID, viewID int64) (GroupView, error) {
	return scanGroupView(q.db.QueryRow(ctx, createGroupView, groupID, viewID))
}

const deleteGroupViewsByGroup = `-- name: DeleteGroupViewsByGroup :execrows
DELETE FROM rel_group_views
WHERE group_id = $1
`

func (q *Queries) DeleteGroupViewsByGroup(ctx context.Context, groupID int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGroupViewsByGroup, groupID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteGroupView = `-- name: DeleteGroupView :execrows
DELETE FROM rel_group_views
WHERE id = $1
`

func (q *Queries) DeleteGroupView(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGroupView, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// BulkCreateGroupViews copies rows into rel_group_views in the given order, so ids ascend in
// input order.
func (q *Queries) BulkCreateGroupViews(ctx context.Context, arg []CreateGroupViewParams) (int64, error) {
	if len(arg) == 0 {
		return 0, nil
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"rel_group_views"},
		[]string{"group_id", "view_id", "name", "short_name", "description", "cod", "is_primary", "is_sublayer", "sub_layers"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			a := arg[i]
			return []any{a.GroupID, a.ViewID, a.Name, a.ShortName, a.Description, a.Cod, a.IsPrimary, a.IsSublayer, a.SubLayers}, nil
		}),
	)
}

// EditableGroupViewColumns maps API field names to the association columns a partial
// update may touch.
var EditableGroupViewColumns = map[string]string{
	"name":        "name",
	"shortName":   "short_name",
	"description": "description",
	"cod":         "cod",
	"isPrimary":   "is_primary",
	"isSublayer":  "is_sublayer",
	"subLayers":   "sub_layers",
}

type UpdateGroupViewParams struct {
	ID      int64
	GroupID int64
	// Set is keyed by column name.
	Set map[string]any
}

// UpdateGroupView applies a partial update to one association of a group and reports how
// many rows matched.
func (q *Queries) UpdateGroupView(ctx context.Context, arg UpdateGroupViewParams) (int64, error) {
	allowed := make(map[string]struct{}, len(EditableGroupViewColumns))
	for _, col := range EditableGroupViewColumns {
		allowed[col] = struct{}{}
	}

	cols := make([]string, 0, len(arg.Set))
	for col := range arg.Set {
		if _, ok := allowed[col]; !ok {
			return 0, fmt.Errorf("column %q is not editable", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args := []any{arg.ID, arg.GroupID}
	var sql strings.Builder
	sql.WriteString("UPDATE rel_group_views SET ")
	if len(cols) == 0 {
		// Nothing to change; still report whether the row exists.
		sql.WriteString("id = id")
	}
	for i, col := range cols {
		if i > 0 {
			sql.WriteString(", ")
		}
		args = append(args, arg.Set[col])
		sql.WriteString(col)
		sql.WriteString(" = $")
		sql.WriteString(strconv.Itoa(len(args)))
	}
	sql.WriteString(" WHERE id = $1 AND group_id = $2")

	result, err := q.db.Exec(ctx, sql.String(), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
