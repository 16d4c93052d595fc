package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vigil/internal/analyzer"
	"vigil/internal/config"
	"vigil/internal/incident"
	"vigil/internal/ingest"
	"vigil/internal/metrics"
	"vigil/internal/models"
	"vigil/internal/schema"
	"vigil/internal/store"

	"github.com/go-chi/chi/v5"
)

// Handler holds the server dependencies
type Handler struct {
	cfg        *config.Config
	normalizer *ingest.Normalizer
	spans      *store.SpanStore
	engine     *analyzer.Engine
	tracker    *schema.Tracker
	incidents  *incident.Service
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, normalizer *ingest.Normalizer, spans *store.SpanStore, engine *analyzer.Engine, tracker *schema.Tracker, incidents *incident.Service, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:        cfg,
		normalizer: normalizer,
		spans:      spans,
		engine:     engine,
		tracker:    tracker,
		incidents:  incidents,
		metrics:    m,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/traces", h.HandleTraceExport)
	r.Post("/v1/events", h.HandleEvent)
	r.Post("/v1/responses", h.HandleResponseCheck)
	r.Post("/v1/schema/reset", h.HandleSchemaReset)
	r.Get("/v1/status", h.HandleStatus)
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
}

// HandleTraceExport receives OTLP/JSON trace export payloads. Storage
// happens on the request path; analysis is enqueued and never blocks
// acceptance of new traffic.
func (h *Handler) HandleTraceExport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	payload, err := ingest.ParsePayload(body)
	if err != nil {
		h.metrics.IncPayloadsRejected()
		h.logger.Warn("rejecting malformed trace export payload", "error", err)
		http.Error(w, "Invalid trace export payload", http.StatusBadRequest)
		return
	}

	projectID := r.Header.Get("X-Project-ID")
	before := h.spans.Len()
	traceIDs := h.normalizer.Ingest(projectID, payload)
	h.metrics.AddSpansIngested(h.spans.Len() - before)

	for _, traceID := range traceIDs {
		h.engine.Enqueue(traceID)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "accepted",
		"traces": len(traceIDs),
	})
}

// HandleEvent receives a monitoring or error event and runs it through
// the incident pipeline asynchronously.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("rejecting malformed event payload", "error", err)
		http.Error(w, "Invalid event payload", http.StatusBadRequest)
		return
	}
	if event.Type == "" {
		http.Error(w, "Event type is required", http.StatusBadRequest)
		return
	}

	// Acknowledge immediately; the pipeline owns its own lifetime.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		h.incidents.HandleEvent(ctx, &event)
	}()

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "accepted",
	})
}

// responseCheckRequest is the response-shape check boundary payload.
type responseCheckRequest struct {
	Method     string      `json:"method"`
	Route      string      `json:"route"`
	StatusCode int         `json:"status_code,omitempty"`
	Body       interface{} `json:"body"`
}

// HandleResponseCheck submits a successful JSON response body to the
// schema drift tracker and returns the diffs, if any.
func (h *Handler) HandleResponseCheck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req responseCheckRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid response check payload", http.StatusBadRequest)
		return
	}
	if req.Method == "" || req.Route == "" {
		http.Error(w, "Method and route are required", http.StatusBadRequest)
		return
	}

	// Only successful responses feed the baseline.
	if req.StatusCode != 0 && (req.StatusCode < 200 || req.StatusCode > 299) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"diffs": []schema.Diff{}})
		return
	}

	diffs := h.tracker.ProcessResponse(req.Method, req.Route, req.Body)
	if diffs == nil {
		diffs = []schema.Diff{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"diffs": diffs})
}

// HandleSchemaReset clears the baselines for a route after its source
// files changed.
func (h *Handler) HandleSchemaReset(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req struct {
		Route string `json:"route"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Route == "" {
		http.Error(w, "Route is required", http.StatusBadRequest)
		return
	}

	h.tracker.ResetRoute(req.Route)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// HandleStatus returns the read-only engine snapshot.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	summary := h.engine.Summary()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active_issues":    summary.Active,
		"resolved_issues":  summary.Resolved,
		"issues_by_rule":   summary.ByRule,
		"schema_baselines": h.tracker.BaselineCount(),
		"spans_buffered":   h.spans.Len(),
	})
}

// HandleHealth returns health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReady returns readiness status
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
	})
}
