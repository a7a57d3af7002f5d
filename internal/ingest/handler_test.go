package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"soc-triage/internal/classify"
	"soc-triage/internal/config"
	"soc-triage/internal/mitre"
	"soc-triage/internal/osint"
	"soc-triage/internal/pipeline"
	"soc-triage/internal/queue"
	"soc-triage/internal/schema"
	"soc-triage/internal/store"
)

func newTestHandler(queueSize int) (*Handler, *queue.RingBuffer) {
	q := queue.NewRingBuffer(queueSize)
	p := pipeline.New(
		classify.New(nil),
		osint.New(nil, nil, osint.DefaultConfig()),
		mitre.NewMapper(nil),
		store.NewLogStore(),
	)
	return NewHandler(p, q), q
}

func serveRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleEventReturnsAlert(t *testing.T) {
	h, _ := newTestHandler(10)

	body := `{"event": "Multiple failed admin logins from 203.0.113.45", "src_ip": "203.0.113.45"}`
	rec := serveRequest(h, http.MethodPost, "/v1/events", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body)
	}

	var alert schema.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("response not a valid alert: %v", err)
	}

	if alert.Detection.Label != schema.LabelMalicious {
		t.Errorf("detection label = %q, want %q", alert.Detection.Label, schema.LabelMalicious)
	}
	if alert.Severity != schema.SeverityCritical {
		t.Errorf("severity = %q, want %q", alert.Severity, schema.SeverityCritical)
	}

	foundIP := false
	for _, ioc := range alert.IOCs {
		if ioc.Kind == schema.IndicatorAddress && ioc.Value == "203.0.113.45" {
			foundIP = true
		}
	}
	if !foundIP {
		t.Errorf("IOCs = %v, want ip 203.0.113.45", alert.IOCs)
	}
}

func TestHandleEventMissingDescription(t *testing.T) {
	h, _ := newTestHandler(10)

	rec := serveRequest(h, http.MethodPost, "/v1/events", `{"src_ip": "10.0.0.1"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleEventInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(10)

	rec := serveRequest(h, http.MethodPost, "/v1/events", `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleEventPayloadTooLarge(t *testing.T) {
	h, _ := newTestHandler(10)
	h = h.WithMaxPayload(64)

	body := fmt.Sprintf(`{"event": %q}`, strings.Repeat("x", 128))
	rec := serveRequest(h, http.MethodPost, "/v1/events", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if !strings.Contains(rec.Body.String(), "payload too large") {
		t.Errorf("body = %q, want payload too large error", rec.Body.String())
	}
}

func TestHandleBatchPayloadTooLarge(t *testing.T) {
	h, _ := newTestHandler(10)
	h = h.WithMaxPayload(64)

	body := fmt.Sprintf(`{"events": [{"event": %q}]}`, strings.Repeat("x", 128))
	rec := serveRequest(h, http.MethodPost, "/v1/events/batch", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleBatchEnqueues(t *testing.T) {
	h, q := newTestHandler(10)

	body := `{"events": [
		{"event": "user logged in from 10.1.2.3"},
		{"event": "phishing link clicked http://example.org/login"}
	]}`
	rec := serveRequest(h, http.MethodPost, "/v1/events/batch", body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusAccepted, rec.Body)
	}

	var resp BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}

	if !resp.Success || resp.Accepted != 2 || resp.Rejected != 0 {
		t.Errorf("response = %+v, want 2 accepted", resp)
	}
	if q.Len() != 2 {
		t.Errorf("queue depth = %d, want 2", q.Len())
	}
}

func TestHandleBatchPartialRejection(t *testing.T) {
	h, q := newTestHandler(10)

	body := `{"events": [
		{"event": "valid event"},
		{"src_ip": "10.0.0.1"}
	]}`
	rec := serveRequest(h, http.MethodPost, "/v1/events/batch", body)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
	}

	var resp BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}

	if resp.Accepted != 1 || resp.Rejected != 1 || len(resp.Errors) != 1 {
		t.Errorf("response = %+v, want 1 accepted and 1 rejected", resp)
	}
	if q.Len() != 1 {
		t.Errorf("queue depth = %d, want 1", q.Len())
	}
}

func TestHandleBatchEmpty(t *testing.T) {
	h, _ := newTestHandler(10)

	rec := serveRequest(h, http.MethodPost, "/v1/events/batch", `{"events": []}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleBatchQueueFull(t *testing.T) {
	h, _ := newTestHandler(1)

	body := `{"events": [
		{"event": "first"},
		{"event": "second"}
	]}`
	rec := serveRequest(h, http.MethodPost, "/v1/events/batch", body)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
	}

	var resp BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Accepted != 1 || resp.Rejected != 1 {
		t.Errorf("response = %+v, want 1 accepted and 1 rejected", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestHandler(10)

	rec := serveRequest(h, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(10)

	serveRequest(h, http.MethodPost, "/v1/events", `{"event": "user logged in"}`)
	rec := serveRequest(h, http.MethodGet, "/metrics", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	out := rec.Body.String()
	for _, metric := range []string{
		"triage_events_total 1",
		"triage_alerts_processed_total 1",
		"triage_queue_depth 0",
	} {
		if !strings.Contains(out, metric) {
			t.Errorf("metrics output missing %q", metric)
		}
	}
}

func TestMiddlewareRateLimitHeaders(t *testing.T) {
	h, _ := newTestHandler(10)

	cfg := config.DefaultConfig()
	cfg.RateLimit.RequestsPerIP = 5
	cfg.RateLimit.BurstSize = 0

	mux := http.NewServeMux()
	h.Routes(mux)
	wrapped := WithMiddleware(mux, cfg)

	t.Run("rate limit headers set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"event": "x"}`))
		req.RemoteAddr = "192.0.2.10:50000"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "5" {
			t.Errorf("X-RateLimit-Limit = %q, want 5", rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("health exempt", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Error("exempt path should not carry rate limit headers")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	cfg := config.DefaultConfig().RateLimit
	cfg.RequestsPerIP = 2
	cfg.BurstSize = 0
	cfg.WindowSize = time.Minute

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		allowed, _, _ := rl.Allow("192.0.2.1")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, remaining, _ := rl.Allow("192.0.2.1")
	if allowed {
		t.Error("third request should be rejected")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}

	// Different IP has its own window
	if allowed, _, _ := rl.Allow("192.0.2.2"); !allowed {
		t.Error("request from different IP should be allowed")
	}
}
