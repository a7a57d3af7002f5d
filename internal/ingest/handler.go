// Package ingest handles HTTP ingestion of raw security events.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"soc-triage/internal/consumer"
	secerrors "soc-triage/internal/errors"
	"soc-triage/internal/pipeline"
	"soc-triage/internal/queue"
	"soc-triage/internal/schema"
)

// Handler handles HTTP event ingestion.
type Handler struct {
	pipeline    *pipeline.Pipeline
	queue       *queue.RingBuffer
	consumer    *consumer.Consumer
	validator   *schema.Validator
	maxPayload  int
	maxBatch    int
	startTime   time.Time
	eventsTotal uint64
}

// NewHandler creates a new ingest Handler.
func NewHandler(p *pipeline.Pipeline, q *queue.RingBuffer) *Handler {
	return &Handler{
		pipeline:   p,
		queue:      q,
		validator:  schema.NewValidator(),
		maxPayload: 10 * 1024 * 1024, // 10MB default
		maxBatch:   1000,
		startTime:  time.Now(),
	}
}

// WithMaxPayload sets the maximum payload size.
func (h *Handler) WithMaxPayload(size int) *Handler {
	h.maxPayload = size
	return h
}

// WithMaxBatch sets the maximum batch size.
func (h *Handler) WithMaxBatch(size int) *Handler {
	h.maxBatch = size
	return h
}

// WithConsumer attaches a consumer for metrics reporting.
func (h *Handler) WithConsumer(c *consumer.Consumer) *Handler {
	h.consumer = c
	return h
}

// Routes registers the handler's endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/events", h.HandleEvent)
	mux.HandleFunc("POST /v1/events/batch", h.HandleBatch)
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)
}

// BatchRequest is the request body for batch ingestion.
type BatchRequest struct {
	Events []schema.RawEvent `json:"events"`
}

// BatchResponse is the response for batch ingestion.
type BatchResponse struct {
	Success   bool     `json:"success"`
	Accepted  int      `json:"accepted"`
	Rejected  int      `json:"rejected"`
	Errors    []string `json:"errors,omitempty"`
	RequestID string   `json:"request_id"`
}

// HandleEvent handles POST /v1/events. The raw event is processed
// synchronously and the resulting alert is returned.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	raw, ok := h.readRawEvent(w, r, requestID)
	if !ok {
		return
	}

	alert, err := h.pipeline.Run(r.Context(), raw)
	if err != nil {
		if errors.Is(err, schema.ErrMissingField) {
			respondError(w, http.StatusBadRequest, err.Error(), requestID)
			return
		}
		// The alert was computed but could not be persisted.
		respondError(w, http.StatusInternalServerError, secerrors.SafeErrorMessage(err), requestID)
		return
	}

	atomic.AddUint64(&h.eventsTotal, 1)
	respondJSON(w, http.StatusOK, alert)
}

// HandleBatch handles POST /v1/events/batch. Events are enqueued for
// asynchronous processing by the consumer workers.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return
	}

	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return
	}

	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "no events provided", requestID)
		return
	}

	if len(req.Events) > h.maxBatch {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch size exceeds maximum of %d", h.maxBatch), requestID)
		return
	}

	var accepted, rejected int
	var errs []string

	for i, raw := range req.Events {
		if err := h.validator.ValidateRawEvent(raw); err != nil {
			rejected++
			errs = append(errs, fmt.Sprintf("event[%d]: %s", i, err.Error()))
			continue
		}

		if err := h.queue.Push(queue.NewEnvelope(raw)); err != nil {
			rejected++
			if errors.Is(err, queue.ErrQueueFull) {
				errs = append(errs, fmt.Sprintf("event[%d]: queue full", i))
			} else {
				errs = append(errs, fmt.Sprintf("event[%d]: %s", i, err.Error()))
			}
			continue
		}

		accepted++
		atomic.AddUint64(&h.eventsTotal, 1)
	}

	resp := BatchResponse{
		Success:   rejected == 0,
		Accepted:  accepted,
		Rejected:  rejected,
		RequestID: requestID,
	}
	if len(errs) > 0 {
		resp.Errors = errs
	}

	status := http.StatusAccepted
	if accepted == 0 && rejected > 0 {
		status = http.StatusBadRequest
	} else if rejected > 0 {
		status = http.StatusMultiStatus // 207 for partial success
	}

	respondJSON(w, status, resp)
}

// readRawEvent decodes a single raw event from the request body.
func (h *Handler) readRawEvent(w http.ResponseWriter, r *http.Request, requestID string) (schema.RawEvent, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxPayload))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large", requestID)
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "failed to read request body", requestID)
		return nil, false
	}

	var raw schema.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err), requestID)
		return nil, false
	}

	return raw, true
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	metrics := h.queue.Metrics()

	status := "healthy"
	if metrics.Depth > int(float64(metrics.Capacity)*0.9) {
		status = "degraded"
	}

	resp := map[string]any{
		"status":         status,
		"queue_depth":    metrics.Depth,
		"queue_capacity": metrics.Capacity,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}

	respondJSON(w, http.StatusOK, resp)
}

// Metrics handles GET /metrics (Prometheus format).
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	queueMetrics := h.queue.Metrics()
	pipeMetrics := h.pipeline.Metrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP triage_events_total Total number of events ingested\n")
	fmt.Fprintf(w, "# TYPE triage_events_total counter\n")
	fmt.Fprintf(w, "triage_events_total %d\n\n", atomic.LoadUint64(&h.eventsTotal))

	fmt.Fprintf(w, "# HELP triage_alerts_processed_total Total alerts processed by the pipeline\n")
	fmt.Fprintf(w, "# TYPE triage_alerts_processed_total counter\n")
	fmt.Fprintf(w, "triage_alerts_processed_total %d\n\n", pipeMetrics.Processed)

	fmt.Fprintf(w, "# HELP triage_alerts_persisted_total Total alerts persisted to storage\n")
	fmt.Fprintf(w, "# TYPE triage_alerts_persisted_total counter\n")
	fmt.Fprintf(w, "triage_alerts_persisted_total %d\n\n", pipeMetrics.Persisted)

	fmt.Fprintf(w, "# HELP triage_persist_errors_total Total alert persistence failures\n")
	fmt.Fprintf(w, "# TYPE triage_persist_errors_total counter\n")
	fmt.Fprintf(w, "triage_persist_errors_total %d\n\n", pipeMetrics.PersistErrors)

	fmt.Fprintf(w, "# HELP triage_queue_pushed_total Total events pushed to queue\n")
	fmt.Fprintf(w, "# TYPE triage_queue_pushed_total counter\n")
	fmt.Fprintf(w, "triage_queue_pushed_total %d\n\n", queueMetrics.Pushed)

	fmt.Fprintf(w, "# HELP triage_queue_popped_total Total events popped from queue\n")
	fmt.Fprintf(w, "# TYPE triage_queue_popped_total counter\n")
	fmt.Fprintf(w, "triage_queue_popped_total %d\n\n", queueMetrics.Popped)

	fmt.Fprintf(w, "# HELP triage_queue_dropped_total Total events dropped due to full queue\n")
	fmt.Fprintf(w, "# TYPE triage_queue_dropped_total counter\n")
	fmt.Fprintf(w, "triage_queue_dropped_total %d\n\n", queueMetrics.Dropped)

	fmt.Fprintf(w, "# HELP triage_queue_depth Current queue depth\n")
	fmt.Fprintf(w, "# TYPE triage_queue_depth gauge\n")
	fmt.Fprintf(w, "triage_queue_depth %d\n\n", queueMetrics.Depth)

	if h.consumer != nil {
		consMetrics := h.consumer.Metrics()

		fmt.Fprintf(w, "# HELP triage_consumed_total Total events consumed from queue\n")
		fmt.Fprintf(w, "# TYPE triage_consumed_total counter\n")
		fmt.Fprintf(w, "triage_consumed_total %d\n\n", consMetrics.Consumed)

		fmt.Fprintf(w, "# HELP triage_consumer_errors_total Total consumer processing errors\n")
		fmt.Fprintf(w, "# TYPE triage_consumer_errors_total counter\n")
		fmt.Fprintf(w, "triage_consumer_errors_total %d\n\n", consMetrics.Errors)
	}

	fmt.Fprintf(w, "# HELP triage_uptime_seconds Uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE triage_uptime_seconds gauge\n")
	fmt.Fprintf(w, "triage_uptime_seconds %d\n", int(time.Since(h.startTime).Seconds()))
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string, requestID string) {
	resp := map[string]any{
		"success":    false,
		"error":      message,
		"request_id": requestID,
	}
	respondJSON(w, status, resp)
}
