// Package store persists finished alerts. The pipeline only depends on
// the Store contract; backends include a structured-log stub, ClickHouse
// and an S3 cold archive.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"soc-triage/internal/logging"
	"soc-triage/internal/schema"
)

// Store durably records a finished alert. A Persist error is a terminal
// pipeline failure; the caller decides whether to retry.
type Store interface {
	Persist(ctx context.Context, alert *schema.Alert) error
}

// LogStore is the stub backend: it writes each alert to the structured
// log. Raw-event fields with sensitive names are masked. Replaceable by
// a search/index backend without touching the pipeline.
type LogStore struct {
	logger    *slog.Logger
	persisted uint64
}

// NewLogStore creates a LogStore using the default logger.
func NewLogStore() *LogStore {
	return &LogStore{logger: slog.Default().With("component", "store")}
}

// Persist implements Store. It never fails.
func (s *LogStore) Persist(_ context.Context, alert *schema.Alert) error {
	masked := maskRaw(alert.Raw)

	iocs, _ := json.Marshal(alert.IOCs)
	mitre, _ := json.Marshal(alert.MITRE)

	s.logger.Info("alert persisted",
		"event_id", alert.EventID,
		"ts", alert.Timestamp,
		"severity", alert.Severity,
		"label", alert.Detection.Label,
		"confidence", alert.Detection.Confidence,
		"reason", alert.Detection.Reason,
		"iocs", string(iocs),
		"mitre", string(mitre),
		"raw", masked,
	)
	atomic.AddUint64(&s.persisted, 1)
	return nil
}

// maskRaw masks sensitive raw-event content: field-name masking catches
// {"password": ...}, pattern masking catches credentials embedded in
// free-text values.
func maskRaw(raw schema.RawEvent) schema.RawEvent {
	masked := make(schema.RawEvent, len(raw))
	for field, value := range raw {
		masked[field] = logging.MaskSensitivePatterns(logging.MaskSensitiveValue(field, value))
	}
	return masked
}

// Persisted returns the number of alerts recorded.
func (s *LogStore) Persisted() uint64 {
	return atomic.LoadUint64(&s.persisted)
}
