package httpapi

import (
	"net/http"
	"strings"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

type groupAnalysis struct {
	GroupID       int64  `json:"groupId"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Layers        int64  `json:"layers"`
	PrimaryLayers int64  `json:"primaryLayers"`
	Sublayers     int64  `json:"sublayers"`
}

type chartDataset struct {
	Label string  `json:"label"`
	Data  []int64 `json:"data"`
}

type chart struct {
	Labels   []string       `json:"labels"`
	Datasets []chartDataset `json:"datasets"`
}

// parseCodes reads ?codes=A,B. Repeated parameters are accepted too.
func parseCodes(r *http.Request) []string {
	var out []string
	for _, raw := range r.URL.Query()["codes"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func (h *Handler) loadAnalysis(w http.ResponseWriter, r *http.Request) ([]sqlcgen.GroupLayerStats, bool) {
	if !h.ensureDashboard(w) {
		return nil, false
	}
	rows, err := h.dashboard.ListGroupLayerStats(r.Context(), parseCodes(r))
	if err != nil {
		h.fail(w, r, apperr.Storage("dashboard", "ListGroupLayerStats", err))
		return nil, false
	}
	return rows, true
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.loadAnalysis(w, r)
	if !ok {
		return
	}

	resp := make([]groupAnalysis, 0, len(rows))
	for _, s := range rows {
		resp = append(resp, groupAnalysis{
			GroupID:       s.GroupID,
			Code:          s.Code,
			Name:          s.Name,
			Layers:        s.Layers,
			PrimaryLayers: s.PrimaryLayers,
			Sublayers:     s.Sublayers,
		})
	}
	h.ok(w, http.StatusOK, resp)
}

func (h *Handler) handleAnalysisCharts(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.loadAnalysis(w, r)
	if !ok {
		return
	}

	c := chart{
		Labels: make([]string, 0, len(rows)),
		Datasets: []chartDataset{
			{Label: "Layers", Data: make([]int64, 0, len(rows))},
			{Label: "Primary layers", Data: make([]int64, 0, len(rows))},
			{Label: "Sublayers", Data: make([]int64, 0, len(rows))},
		},
	}
	for _, s := range rows {
		c.Labels = append(c.Labels, s.Code)
		c.Datasets[0].Data = append(c.Datasets[0].Data, s.Layers)
		c.Datasets[1].Data = append(c.Datasets[1].Data, s.PrimaryLayers)
		c.Datasets[2].Data = append(c.Datasets[2].Data, s.Sublayers)
	}
	h.ok(w, http.StatusOK, c)
}
