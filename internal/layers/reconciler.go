package layers

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cast"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

// Writer is the write side used inside a transaction. *sqlcgen.Queries satisfies it.
type Writer interface {
	GetGroup(ctx context.Context, id int64) (sqlcgen.Group, error)
	DeleteGroupViewsByGroup(ctx context.Context, groupID int64) (int64, error)
	BulkCreateGroupViews(ctx context.Context, arg []sqlcgen.CreateGroupViewParams) (int64, error)
	UpdateGroupView(ctx context.Context, arg sqlcgen.UpdateGroupViewParams) (int64, error)
}

// Transactor runs fn atomically: either every write fn makes is committed or none is.
type Transactor interface {
	InTx(ctx context.Context, fn func(w Writer) error) error
}

type TxFunc func(ctx context.Context, fn func(w Writer) error) error

func (f TxFunc) InTx(ctx context.Context, fn func(w Writer) error) error {
	return f(ctx, fn)
}

// QueriesTx adapts a transaction runner handing out *sqlcgen.Queries, such as db.Pool.InTx.
func QueriesTx(inTx func(ctx context.Context, fn func(q *sqlcgen.Queries) error) error) Transactor {
	return TxFunc(func(ctx context.Context, fn func(w Writer) error) error {
		return inTx(ctx, func(q *sqlcgen.Queries) error { return fn(q) })
	})
}

// AssociationInput is one entry of a full replacement of a group's layers.
type AssociationInput struct {
	GroupID     int64        `json:"groupId" validate:"required,gt=0"`
	ViewID      int64        `json:"viewId" validate:"required,gt=0"`
	Name        *string      `json:"name,omitempty"`
	ShortName   *string      `json:"shortName,omitempty"`
	Description *string      `json:"description,omitempty"`
	Cod         *string      `json:"cod,omitempty"`
	IsPrimary   *bool        `json:"isPrimary,omitempty"`
	IsSublayer  *bool        `json:"isSublayer,omitempty"`
	SubLayers   SubLayerRefs `json:"subLayers,omitempty"`
}

// Edit is a partial update of one association. Fields holds the decoded JSON body minus the
// id; keys that are not editable association columns are ignored.
type Edit struct {
	ID     int64
	Fields map[string]any
}

func (e *Edit) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	id, err := cast.ToInt64E(fields["id"])
	if err != nil {
		return fmt.Errorf("edit id: %w", err)
	}
	delete(fields, "id")
	e.ID = id
	e.Fields = fields
	return nil
}

// ReplaceGroupLayers swaps the group's whole association set for layers in one transaction,
// so readers see either the old set or the new one.
func (s *Service) ReplaceGroupLayers(ctx context.Context, groupID int64, layers []AssociationInput) error {
	const op = "ReplaceGroupLayers"
	if groupID <= 0 {
		return apperr.Validation(component, op, "groupId is required")
	}

	params := make([]sqlcgen.CreateGroupViewParams, 0, len(layers))
	for i, in := range layers {
		if err := s.validate.Struct(in); err != nil {
			return apperr.Validation(component, op, "layers[%d]: %v", i, err)
		}
		if in.GroupID != groupID {
			return apperr.Validation(component, op, "layers[%d]: groupId %d does not match group %d", i, in.GroupID, groupID)
		}
		params = append(params, sqlcgen.CreateGroupViewParams{
			GroupID:     in.GroupID,
			ViewID:      in.ViewID,
			Name:        in.Name,
			ShortName:   in.ShortName,
			Description: in.Description,
			Cod:         in.Cod,
			IsPrimary:   in.IsPrimary,
			IsSublayer:  in.IsSublayer,
			SubLayers:   []int64(in.SubLayers),
		})
	}

	err := s.tx.InTx(ctx, func(w Writer) error {
		if _, err := w.GetGroup(ctx, groupID); err != nil {
			return apperr.FromStorage(component, op, err, fmt.Sprintf("group %d", groupID))
		}
		removed, err := w.DeleteGroupViewsByGroup(ctx, groupID)
		if err != nil {
			return writeErr(op, "destroy", err)
		}
		created, err := w.BulkCreateGroupViews(ctx, params)
		if err != nil {
			return writeErr(op, "create", err)
		}
		s.log.Info().
			Int64("group_id", groupID).
			Int64("removed", removed).
			Int64("created", created).
			Msg("replaced group layers")
		return nil
	})
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorage, component, op, "tx")
	}
	return nil
}

// ApplyEdits updates the given associations of a group in one transaction and returns the
// freshly composed layer tree.
func (s *Service) ApplyEdits(ctx context.Context, groupID int64, edits []Edit) ([]*Layer, error) {
	const op = "ApplyEdits"
	if groupID <= 0 {
		return nil, apperr.Validation(component, op, "groupId is required")
	}

	updates := make([]sqlcgen.UpdateGroupViewParams, 0, len(edits))
	for i, e := range edits {
		if e.ID <= 0 {
			return nil, apperr.Validation(component, op, "editions[%d]: id is required", i)
		}
		set, err := editColumns(e.Fields)
		if err != nil {
			return nil, apperr.Validation(component, op, "editions[%d]: %v", i, err)
		}
		updates = append(updates, sqlcgen.UpdateGroupViewParams{ID: e.ID, GroupID: groupID, Set: set})
	}

	err := s.tx.InTx(ctx, func(w Writer) error {
		if _, err := w.GetGroup(ctx, groupID); err != nil {
			return apperr.FromStorage(component, op, err, fmt.Sprintf("group %d", groupID))
		}
		for _, u := range updates {
			n, err := w.UpdateGroupView(ctx, u)
			if err != nil {
				return writeErr(op, "update", err)
			}
			if n == 0 {
				return apperr.NotFound(component, op, "association %d not found in group %d", u.ID, groupID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindStorage, component, op, "tx")
	}

	return s.ComposeGroupLayers(ctx, groupID)
}

// editColumns turns edit fields into association column values.
func editColumns(fields map[string]any) (map[string]any, error) {
	set := make(map[string]any, len(fields))
	for key, v := range fields {
		col, ok := sqlcgen.EditableGroupViewColumns[key]
		if !ok {
			continue
		}
		if v == nil {
			set[col] = nil
			continue
		}
		var err error
		switch key {
		case "subLayers":
			var refs SubLayerRefs
			refs, err = ParseSubLayerRefs(v)
			set[col] = []int64(refs)
		case "isPrimary", "isSublayer":
			set[col], err = cast.ToBoolE(v)
		default:
			set[col], err = cast.ToStringE(v)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return set, nil
}

func (s *Service) AddAssociation(ctx context.Context, groupID, viewID int64) (Association, error) {
	const op = "AddAssociation"
	if groupID <= 0 || viewID <= 0 {
		return Association{}, apperr.Validation(component, op, "groupId and viewId are required")
	}
	row, err := s.store.CreateGroupView(ctx, groupID, viewID)
	if err != nil {
		return Association{}, writeErr(op, "create", err)
	}
	return toAssociation(row), nil
}

func (s *Service) RemoveAssociation(ctx context.Context, id int64) error {
	const op = "RemoveAssociation"
	if id <= 0 {
		return apperr.Validation(component, op, "id is required")
	}
	n, err := s.store.DeleteGroupView(ctx, id)
	if err != nil {
		return writeErr(op, "delete", err)
	}
	if n == 0 {
		return apperr.NotFound(component, op, "association %d not found", id)
	}
	return nil
}

// writeErr classifies a failed write. A foreign key violation means the referenced group or
// view does not exist.
func writeErr(op, stage string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return apperr.Wrap(apperr.NotFound(component, op, "referenced group or view does not exist: %s", pgErr.Detail), apperr.KindNotFound, component, op, stage)
	}
	return apperr.Wrap(apperr.Storage(component, op, err), apperr.KindStorage, component, op, stage)
}
