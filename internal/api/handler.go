package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/metrics"
	"github.com/smukkama/energy-kpi/internal/protocol"
)

// RequestIDHeader carries the correlation id of a request
const RequestIDHeader = "X-Request-ID"

// Service is the KPI core as seen by the HTTP layer
type Service interface {
	GetEntityKPIs(ctx context.Context, kind hierarchy.Kind, id string, opts kpi.Options) (kpi.EntityKPI, error)
	GetEntitiesKPIs(ctx context.Context, kind hierarchy.Kind, ids []string, opts kpi.Options) (map[string]kpi.EntityKPI, error)
	GetBuildingAnalytics(ctx context.Context, buildingID string, opts kpi.Options) (*analytics.BuildingAnalytics, error)
}

// Handler serves the KPI endpoints
type Handler struct {
	service Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service Service, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, metrics: m, logger: logger}
}

// Router registers every route on a new mux router
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/buildings/{id}/analytics", h.buildingAnalytics).Methods(http.MethodGet)
	v1.HandleFunc("/{kind}/{id}/kpis", h.entityKPIs).Methods(http.MethodGet)
	v1.HandleFunc("/{kind}/kpis", h.entitiesKPIs).Methods(http.MethodPost)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) entityKPIs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := hierarchy.ParseKind(vars["kind"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.GetEntityKPIs(r.Context(), kind, vars["id"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) entitiesKPIs(w http.ResponseWriter, r *http.Request) {
	kind, err := hierarchy.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, apperr.Validation("malformed request body: %v", err))
		return
	}
	if len(body.IDs) == 0 {
		h.writeError(w, r, apperr.Validation("ids must not be empty"))
		return
	}

	result, err := h.service.GetEntitiesKPIs(r.Context(), kind, body.IDs, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) buildingAnalytics(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.service.GetBuildingAnalytics(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseOptions reads start, end, interval, resolution, measurementType and
// stateType from the query string
func parseOptions(r *http.Request) (kpi.Options, error) {
	q := r.URL.Query()

	start, err := parseTime(q.Get("start"), "start")
	if err != nil {
		return kpi.Options{}, err
	}
	end, err := parseTime(q.Get("end"), "end")
	if err != nil {
		return kpi.Options{}, err
	}

	var resolution *int
	if v := q.Get("resolution"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return kpi.Options{}, apperr.Validation("invalid resolution %q", v)
		}
		resolution = &minutes
	}

	return protocol.ParseOptions(start, end, q.Get("interval"), resolution, q.Get("measurementType"), q.Get("stateType"))
}

func parseTime(v, name string) (time.Time, error) {
	if v == "" {
		return time.Time{}, apperr.Validation("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid %s %q: expected RFC3339", name, v)
	}
	return t, nil
}

// StatusCode maps an error to its HTTP status
func StatusCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	requestID := w.Header().Get(RequestIDHeader)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: apperr.KindOf(err).String(), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request id and counts requests per route template
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.HTTPRequest(route, strconv.Itoa(rec.status))
	})
}
