package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

const groupsComponent = "groups"

type group struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type groupCreate struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required"`
}

type groupUpdate struct {
	ID   int64   `json:"id" validate:"required,gt=0"`
	Code *string `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Name *string `json:"name,omitempty" validate:"omitempty,min=1"`
}

func toGroup(g sqlcgen.Group) group {
	return group{
		ID:        g.ID,
		Code:      g.Code,
		Name:      g.Name,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// groupWriteErr maps a failed insert or update; a duplicate code is the caller's fault.
func groupWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Validation(groupsComponent, op, "group code already exists")
	}
	return apperr.FromStorage(groupsComponent, op, err, "group")
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if !h.ensureGroups(w) {
		return
	}

	rows, err := h.groups.ListGroups(r.Context())
	if err != nil {
		h.fail(w, r, apperr.Storage(groupsComponent, "ListGroups", err))
		return
	}

	resp := make([]group, 0, len(rows))
	for _, g := range rows {
		resp = append(resp, toGroup(g))
	}
	h.ok(w, http.StatusOK, resp)
}

func (h *Handler) handleListGroupCodes(w http.ResponseWriter, r *http.Request) {
	if !h.ensureGroups(w) {
		return
	}

	codes, err := h.groups.ListGroupCodes(r.Context())
	if err != nil {
		h.fail(w, r, apperr.Storage(groupsComponent, "ListGroupCodes", err))
		return
	}
	if codes == nil {
		codes = []string{}
	}
	h.ok(w, http.StatusOK, codes)
}

func (h *Handler) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.ensureGroups(w) {
		return
	}

	row, err := h.groups.GetGroup(r.Context(), id)
	if err != nil {
		h.fail(w, r, apperr.FromStorage(groupsComponent, "GetGroup", err, fmt.Sprintf("group %d", id)))
		return
	}
	h.ok(w, http.StatusOK, toGroup(row))
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupCreate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, apperr.Validation(groupsComponent, "CreateGroup", "%v", err))
		return
	}

	if !h.ensureGroups(w) {
		return
	}

	row, err := h.groups.CreateGroup(r.Context(), sqlcgen.CreateGroupParams{Code: req.Code, Name: req.Name})
	if err != nil {
		h.fail(w, r, groupWriteErr("CreateGroup", err))
		return
	}
	h.ok(w, http.StatusCreated, toGroup(row))
}

func (h *Handler) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, apperr.Validation(groupsComponent, "UpdateGroup", "%v", err))
		return
	}

	if !h.ensureGroups(w) {
		return
	}

	row, err := h.groups.UpdateGroup(r.Context(), sqlcgen.UpdateGroupParams{
		ID:   req.ID,
		Code: req.Code,
		Name: req.Name,
	})
	if err != nil {
		h.fail(w, r, groupWriteErr("UpdateGroup", err))
		return
	}
	h.ok(w, http.StatusOK, toGroup(row))
}

func (h *Handler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.ensureGroups(w) {
		return
	}

	n, err := h.groups.DeleteGroup(r.Context(), id)
	if err != nil {
		h.fail(w, r, apperr.Storage(groupsComponent, "DeleteGroup", err))
		return
	}
	if n == 0 {
		h.fail(w, r, apperr.NotFound(groupsComponent, "DeleteGroup", "group %d not found", id))
		return
	}
	h.ok(w, http.StatusOK, map[string]any{"id": id})
}
