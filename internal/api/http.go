package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/monitor"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

// maxBodyBytes bounds request bodies on the ops surface.
const maxBodyBytes = 1 << 20

// Pipeline is the slice of the orchestrator exposed over the network.
type Pipeline interface {
	Capture(ctx context.Context, in monitor.CaptureInput) (*models.ErrorRecord, error)
	Stats() models.MonitoringStats
	Recent(minutes int) []models.ErrorRecord
	Query(filter models.QueryFilter) []models.ErrorRecord
	Get(id string) (models.ErrorRecord, bool)
	Resolve(ctx context.Context, id string, method models.ResolutionMethod, details string) (models.ErrorRecord, error)
	Patterns() []models.ErrorPattern
	PatternRecords(signature string) []models.ErrorRecord
	Clusters() []models.PatternCluster
	RootCause(signature string) (string, bool)
	Analysis() models.AnalysisResult
	CorrelateWithEvents(events []models.ExternalEvent) []models.EventCorrelation
	CircuitBreakers() map[string]models.BreakerStatus
	CorrectionStats() models.CorrectionStats
}

type httpHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewHTTPHandler builds the ops router: Prometheus metrics, liveness and the
// JSON telemetry API.
func NewHTTPHandler(pipeline Pipeline, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &httpHandler{pipeline: pipeline, logger: logger}

	router := mux.NewRouter()
	if capturer, ok := pipeline.(PanicCapturer); ok {
		router.Use(RecoveryMiddleware(capturer, logger))
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/errors", h.handleCapture).Methods(http.MethodPost)
	v1.HandleFunc("/errors", h.handleQuery).Methods(http.MethodGet)
	v1.HandleFunc("/errors/recent", h.handleRecent).Methods(http.MethodGet)
	v1.HandleFunc("/errors/{id}", h.handleGet).Methods(http.MethodGet)
	v1.HandleFunc("/errors/{id}/resolve", h.handleResolve).Methods(http.MethodPost)
	v1.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/patterns", h.handlePatterns).Methods(http.MethodGet)
	v1.HandleFunc("/patterns/{signature}/root-cause", h.handleRootCause).Methods(http.MethodGet)
	v1.HandleFunc("/patterns/{signature}/records", h.handlePatternRecords).Methods(http.MethodGet)
	v1.HandleFunc("/clusters", h.handleClusters).Methods(http.MethodGet)
	v1.HandleFunc("/analysis", h.handleAnalysis).Methods(http.MethodGet)
	v1.HandleFunc("/correlations", h.handleCorrelations).Methods(http.MethodPost)
	v1.HandleFunc("/breakers", h.handleBreakers).Methods(http.MethodGet)
	return router
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *httpHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.pipeline.Capture(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if rec == nil {
		h.writeJSON(w, http.StatusAccepted, map[string]any{"captured": false})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"captured": true, "record": rec})
}

func (h *httpHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records := h.pipeline.Query(filter)
	h.writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(records), "count": len(records)})
}

func (h *httpHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	minutes := DefaultRecentMinutes
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		minutes = n
	}
	records := h.pipeline.Recent(minutes)
	h.writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(records), "count": len(records)})
}

func (h *httpHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := h.pipeline.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	req := ResolveRequest{Method: models.ResolutionManual}
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rec, err := h.pipeline.Resolve(r.Context(), mux.Vars(r)["id"], req.Method, req.Details)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *httpHandler) handleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pipeline.Stats())
}

func (h *httpHandler) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	patterns := h.pipeline.Patterns()
	if patterns == nil {
		patterns = []models.ErrorPattern{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns, "count": len(patterns)})
}

func (h *httpHandler) handleRootCause(w http.ResponseWriter, r *http.Request) {
	signature := mux.Vars(r)["signature"]
	cause, ok := h.pipeline.RootCause(signature)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no root cause for pattern")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signature": signature, "rootCause": cause})
}

func (h *httpHandler) handlePatternRecords(w http.ResponseWriter, r *http.Request) {
	records := h.pipeline.PatternRecords(mux.Vars(r)["signature"])
	h.writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(records), "count": len(records)})
}

func (h *httpHandler) handleAnalysis(w http.ResponseWriter, _ *http.Request) {
	out, err := ToProtoAnalysis(h.pipeline.Analysis())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out.AsMap())
}

// CorrelationRequest lists external events to correlate with error volume.
type CorrelationRequest struct {
	Events []models.ExternalEvent `json:"events"`
}

func (h *httpHandler) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	var req CorrelationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Events) == 0 {
		h.writeError(w, http.StatusBadRequest, "events are required")
		return
	}
	for i, e := range req.Events {
		if e.Type == "" || e.Timestamp.IsZero() {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d needs a type and a timestamp", i))
			return
		}
	}
	correlations := nonNilSlice(h.pipeline.CorrelateWithEvents(req.Events))
	h.writeJSON(w, http.StatusOK, map[string]any{"correlations": correlations, "count": len(correlations)})
}

func (h *httpHandler) handleClusters(w http.ResponseWriter, _ *http.Request) {
	clusters := h.pipeline.Clusters()
	if clusters == nil {
		clusters = []models.PatternCluster{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters, "count": len(clusters)})
}

func (h *httpHandler) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"breakers":    h.pipeline.CircuitBreakers(),
		"corrections": h.pipeline.CorrectionStats(),
	})
}

func (h *httpHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "record not found")
	default:
		h.logger.Warn("telemetry request failed", slog.String("origin", utils.OpOf(err)), slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *httpHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"error": msg})
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response failed", slog.Any("error", err))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return utils.NewAppError("api.decodeBody", "invalid JSON body", err)
	}
	return nil
}

func parseFilter(r *http.Request) (models.QueryFilter, error) {
	q := r.URL.Query()
	filter := models.QueryFilter{
		Type:       models.ErrorType(q.Get("type")),
		Severity:   models.Severity(q.Get("severity")),
		WorkflowID: q.Get("workflowId"),
		UserID:     q.Get("userId"),
		SortBy:     models.SortField(q.Get("sortBy")),
		SortAsc:    strings.EqualFold(q.Get("order"), "asc"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return filter, utils.NewAppError("api.parseFilter", "unknown type", monitor.ErrInvalidInput)
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return filter, utils.NewAppError("api.parseFilter", "unknown severity", monitor.ErrInvalidInput)
	}
	if raw := q.Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, utils.NewAppError("api.parseFilter", "resolved must be a boolean", err)
		}
		filter.Resolved = &resolved
	}
	for key, dst := range map[string]*int{"offset": &filter.Offset, "limit": &filter.Limit} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, utils.NewAppError("api.parseFilter", key+" must be a non-negative integer", monitor.ErrInvalidInput)
		}
		*dst = n
	}
	now := time.Now()
	if raw := q.Get("start"); raw != "" {
		t, err := utils.ParseTimeParam(raw, now)
		if err != nil {
			return filter, utils.NewAppError("api.parseFilter", "invalid start", err)
		}
		filter.Start = t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := utils.ParseTimeParam(raw, now)
		if err != nil {
			return filter, utils.NewAppError("api.parseFilter", "invalid end", err)
		}
		filter.End = t
	}
	return filter, nil
}

func nonNil(records []models.ErrorRecord) []models.ErrorRecord {
	return nonNilSlice(records)
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
