package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const getGroup = `-- name: GetGroup :one
SELECT id, code, name, created_at, updated_at
FROM groups
WHERE id = $1
`

func (q *Queries) GetGroup(ctx context.Context, id int64) (Group, error) {
	row := q.db.QueryRow(ctx, getGroup, id)
	var i Group
	err := row.Scan(&i.ID, &i.Code, &i.Name, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listGroups = `-- name: ListGroups :many
SELECT id, code, name, created_at, updated_at
FROM groups
ORDER BY id ASC
`

func (q *Queries) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := q.db.Query(ctx, listGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Group
	for rows.Next() {
		var i Group
		if err := rows.Scan(&i.ID, &i.Code, &i.Name, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listGroupCodes = `-- name: ListGroupCodes :many
SELECT code
FROM groups
ORDER BY code ASC
`

func (q *Queries) ListGroupCodes(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listGroupCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		items = append(items, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createGroup = `-- name: CreateGroup :one
INSERT INTO groups (code, name)
VALUES ($1, $2)
RETURNING id, code, name, created_at, updated_at
`

type CreateGroupParams struct {
	Code string
	Name string
}

func (q *Queries) CreateGroup(ctx context.Context, arg CreateGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, createGroup, arg.Code, arg.Name)
	var i Group
	err := row.Scan(&i.ID, &i.Code, &i.Name, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const updateGroup = `-- name: UpdateGroup :one
UPDATE groups
SET code = COALESCE($2, code),
    name = COALESCE($3, name),
    updated_at = now()
WHERE id = $1
RETURNING id, code, name, created_at, updated_at
`

type UpdateGroupParams struct {
	ID   int64
	Code *string
	Name *string
}

func (q *Queries) UpdateGroup(ctx context.Context, arg UpdateGroupParams) (Group, error) {
	row := q.db.QueryRow(ctx, updateGroup, arg.ID, arg.Code, arg.Name)
	var i Group
	err := row.Scan(&i.ID, &i.Code, &i.Name, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const deleteGroup = `-- name: DeleteGroup :execrows
DELETE FROM groups
WHERE id = $1
`

func (q *Queries) DeleteGroup(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteGroup, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getRegisteredView = `-- name: GetRegisteredView :one
SELECT id, view_id, workspace
FROM registered_views
WHERE view_id = $1
ORDER BY id ASC
LIMIT 1
`

func (q *Queries) GetRegisteredView(ctx context.Context, viewID int64) (RegisteredView, error) {
	row := q.db.QueryRow(ctx, getRegisteredView, viewID)
	var i RegisteredView
	err := row.Scan(&i.ID, &i.ViewID, &i.Workspace)
	return i, err
}

const listGroupLayerStats = `-- name: ListGroupLayerStats :many
SELECT g.id,
       g.code,
       g.name,
       COUNT(gv.id) AS layers,
       COUNT(gv.id) FILTER (WHERE COALESCE(NULLIF(gv.is_primary, false), v.is_primary, false)) AS primary_layers,
       COUNT(gv.id) FILTER (WHERE COALESCE(NULLIF(gv.is_sublayer, false), v.is_sublayer, false)) AS sublayers
FROM groups g
LEFT JOIN rel_group_views gv ON gv.group_id = g.id
LEFT JOIN views v ON v.id = gv.view_id
WHERE (cardinality($1::text[]) = 0 OR g.code = ANY($1::text[]))
GROUP BY g.id, g.code, g.name
ORDER BY g.id ASC
`

// ListGroupLayerStats counts associated layers per group; an empty codes list means every
// group.
func (q *Queries) ListGroupLayerStats(ctx context.Context, codes []string) ([]GroupLayerStats, error) {
	if codes == nil {
		codes = []string{}
	}
	rows, err := q.db.Query(ctx, listGroupLayerStats, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GroupLayerStats
	for rows.Next() {
		var i GroupLayerStats
		if err := rows.Scan(&i.GroupID, &i.Code, &i.Name, &i.Layers, &i.PrimaryLayers, &i.Sublayers); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
