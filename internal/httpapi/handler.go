package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/kylefelipe/satalertas-server/internal/apperr"
	"github.com/kylefelipe/satalertas-server/internal/db"
	"github.com/kylefelipe/satalertas-server/internal/layers"
	"github.com/kylefelipe/satalertas-server/internal/metrics"
	"github.com/kylefelipe/satalertas-server/internal/record"
	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
)

type groupQueries interface {
	GetGroup(ctx context.Context, id int64) (sqlcgen.Group, error)
	ListGroups(ctx context.Context) ([]sqlcgen.Group, error)
	ListGroupCodes(ctx context.Context) ([]string, error)
	CreateGroup(ctx context.Context, arg sqlcgen.CreateGroupParams) (sqlcgen.Group, error)
	UpdateGroup(ctx context.Context, arg sqlcgen.UpdateGroupParams) (sqlcgen.Group, error)
	DeleteGroup(ctx context.Context, id int64) (int64, error)
}

type dashboardQueries interface {
	ListGroupLayerStats(ctx context.Context, codes []string) ([]sqlcgen.GroupLayerStats, error)
}

// layerService is the part of *layers.Service the API exposes.
type layerService interface {
	ComposeGroupLayers(ctx context.Context, groupID int64) ([]*layers.Layer, error)
	AvailableLayers(ctx context.Context, groupID int64) ([]record.Record, error)
	ListAssociations(ctx context.Context) ([]layers.Association, error)
	AddAssociation(ctx context.Context, groupID, viewID int64) (layers.Association, error)
	RemoveAssociation(ctx context.Context, id int64) error
	ReplaceGroupLayers(ctx context.Context, groupID int64, in []layers.AssociationInput) error
	ApplyEdits(ctx context.Context, groupID int64, edits []layers.Edit) ([]*layers.Layer, error)
}

type Options struct {
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

type Handler struct {
	log       zerolog.Logger
	pool      *db.Pool
	groups    groupQueries
	dashboard dashboardQueries
	layers    layerService
	metrics   *metrics.Metrics
	cors      []string
	validate  *validator.Validate
}

func NewHandler(log zerolog.Logger, pool *db.Pool, svc *layers.Service, opts Options) *Handler {
	h := &Handler{
		log:      log,
		pool:     pool,
		metrics:  opts.Metrics,
		cors:     opts.CORSOrigins,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if q := pool.Queries(); q != nil {
		h.groups = q
		h.dashboard = q
	}
	if svc != nil {
		h.layers = svc
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)
	if len(h.cors) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cors,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Handle("/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/dashboard/analysis", func(r chi.Router) {
				r.Get("/", h.handleAnalysis)
				r.Get("/charts", h.handleAnalysisCharts)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.handleListGroups)
				r.Post("/", h.handleCreateGroup)
				r.Put("/", h.handleUpdateGroup)
				r.Get("/codes", h.handleListGroupCodes)
				r.Get("/by-id", h.handleGetGroup)
				r.Delete("/{id}", h.handleDeleteGroup)
			})

			r.Route("/group-views", func(r chi.Router) {
				r.Get("/", h.handleListAssociations)
				r.Post("/", h.handleAddAssociation)
				r.Put("/", h.handleReplaceGroupLayers)
				r.Put("/advanced", h.handleApplyEdits)
				r.Delete("/{id}", h.handleRemoveAssociation)
				r.Route("/groups/{groupId}", func(r chi.Router) {
					r.Get("/layers", h.handleGroupLayers)
					r.Get("/available", h.handleAvailableLayers)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		duration := time.Since(start)
		h.metrics.ObserveHTTPRequest(r.Method, path, ww.Status(), duration)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", duration.Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ok writes the success envelope.
func (h *Handler) ok(w http.ResponseWriter, status int, data any) {
	h.writeJSON(w, status, map[string]any{"status": statusSuccess, "data": data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	body := map[string]any{
		"code":    code,
		"message": msg,
	}
	if details != nil {
		body["details"] = details
	}
	h.writeJSON(w, status, map[string]any{"status": statusError, "error": body})
}

// fail is the single place handler errors are turned into responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusCode(err)
	component, op, stage := apperr.Origin(err)

	ev := h.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("component", component).
		Str("op", op).
		Str("stage", stage).
		Msg("request failed")

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	var details map[string]any
	if component != "" {
		details = map[string]any{"component": component, "op": op}
		if stage != "" {
			details["stage"] = stage
		}
	}
	h.writeError(w, status, apperr.Code(err), msg, details)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return decodeAll(dec, dst)
}

// decodeJSON accepts unknown fields. Layer payloads are often the composed layers sent back,
// carrying derived fields the server ignores.
func decodeJSON(r *http.Request, dst any) error {
	return decodeAll(json.NewDecoder(r.Body), dst)
}

func decodeAll(dec *jsoniter.Decoder, dst any) error {
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) invalidBody(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusBadRequest, apperr.KindValidation.String(), "invalid json body", map[string]any{"error": err.Error()})
}

// parseID reads a positive integer id.
func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("httpapi", "parseID", "%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureGroups(w http.ResponseWriter) bool {
	if h.groups == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureDashboard(w http.ResponseWriter) bool {
	if h.dashboard == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) ensureLayers(w http.ResponseWriter) bool {
	if h.layers == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}
