package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kylefelipe/satalertas-server/internal/layers"
)

type associationCreate struct {
	GroupID int64 `json:"groupId"`
	ViewID  int64 `json:"viewId"`
}

type layersReplace struct {
	GroupID int64 `json:"groupId"`
	// GroupOwner is accepted for compatibility with older clients and not used.
	GroupOwner string                    `json:"groupOwner,omitempty"`
	Layers     []layers.AssociationInput `json:"layers"`
}

type layersEdit struct {
	GroupID  int64         `json:"groupId"`
	Editions []layers.Edit `json:"editions"`
}

func (h *Handler) handleListAssociations(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLayers(w) {
		return
	}

	rows, err := h.layers.ListAssociations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, rows)
}

func (h *Handler) handleGroupLayers(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(chi.URLParam(r, "groupId"), "groupId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	out, err := h.layers.ComposeGroupLayers(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

func (h *Handler) handleAvailableLayers(w http.ResponseWriter, r *http.Request) {
	groupID, err := parseID(chi.URLParam(r, "groupId"), "groupId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	out, err := h.layers.AvailableLayers(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

func (h *Handler) handleAddAssociation(w http.ResponseWriter, r *http.Request) {
	var req associationCreate
	if err := decodeJSON(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	row, err := h.layers.AddAssociation(r.Context(), req.GroupID, req.ViewID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, row)
}

// handleReplaceGroupLayers swaps the whole association set and answers with the new tree.
func (h *Handler) handleReplaceGroupLayers(w http.ResponseWriter, r *http.Request) {
	var req layersReplace
	if err := decodeJSON(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	if err := h.layers.ReplaceGroupLayers(r.Context(), req.GroupID, req.Layers); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.layers.ComposeGroupLayers(r.Context(), req.GroupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

func (h *Handler) handleApplyEdits(w http.ResponseWriter, r *http.Request) {
	var req layersEdit
	if err := decodeJSON(r, &req); err != nil {
		h.invalidBody(w, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	out, err := h.layers.ApplyEdits(r.Context(), req.GroupID, req.Editions)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, out)
}

func (h *Handler) handleRemoveAssociation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.ensureLayers(w) {
		return
	}

	if err := h.layers.RemoveAssociation(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]any{"id": id})
}
