package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"soc-triage/internal/schema"
)

// Uploader uploads archive objects. Satisfied by *Client.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Archiver batches alerts and uploads them as gzip-compressed JSONL objects.
type Archiver struct {
	uploader Uploader
	config   Config
	logger   *slog.Logger

	mu      sync.Mutex
	pending []*schema.Alert
	closed  bool

	flushTimer *time.Timer

	archived atomic.Int64
	batches  atomic.Int64
	errors   atomic.Int64
}

// NewArchiver creates a new alert archiver.
func NewArchiver(uploader Uploader, cfg Config, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Archiver{
		uploader: uploader,
		config:   cfg,
		logger:   logger,
		pending:  make([]*schema.Alert, 0, cfg.BatchSize),
	}

	if cfg.FlushInterval > 0 {
		a.flushTimer = time.AfterFunc(cfg.FlushInterval, a.timerFlush)
	}

	return a
}

// Archive adds an alert to the pending batch, flushing when the batch fills.
func (a *Archiver) Archive(ctx context.Context, alert *schema.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("s3: archiver closed")
	}

	a.pending = append(a.pending, alert)

	if len(a.pending) >= a.config.BatchSize {
		return a.flushLocked(ctx)
	}

	return nil
}

// Flush uploads any pending alerts immediately.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked(ctx)
}

// Close flushes pending alerts and stops the flush timer.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.flushTimer != nil {
		a.flushTimer.Stop()
	}

	return a.flushLocked(ctx)
}

func (a *Archiver) timerFlush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.flushLocked(ctx); err != nil {
		a.logger.Error("timed archive flush failed", "error", err)
	}

	a.flushTimer.Reset(a.config.FlushInterval)
}

// flushLocked uploads the pending batch. Caller must hold a.mu.
func (a *Archiver) flushLocked(ctx context.Context) error {
	if len(a.pending) == 0 {
		return nil
	}

	body, err := encodeBatch(a.pending)
	if err != nil {
		a.errors.Add(1)
		return err
	}

	key := archiveKey(time.Now().UTC())
	if err := a.uploader.Upload(ctx, key, body, "application/gzip"); err != nil {
		a.errors.Add(1)
		return err
	}

	a.archived.Add(int64(len(a.pending)))
	a.batches.Add(1)

	a.logger.Info("archived alert batch",
		"key", key,
		"alerts", len(a.pending),
		"bytes", len(body),
	)

	a.pending = a.pending[:0]
	return nil
}

// encodeBatch serializes alerts as gzip-compressed JSONL.
func encodeBatch(alerts []*schema.Alert) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	for _, alert := range alerts {
		if err := enc.Encode(alert); err != nil {
			gz.Close()
			return nil, fmt.Errorf("s3: failed to encode alert: %w", err)
		}
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("s3: failed to compress batch: %w", err)
	}

	return buf.Bytes(), nil
}

// archiveKey builds a date-partitioned object key.
func archiveKey(now time.Time) string {
	return fmt.Sprintf("%s/%s.jsonl.gz", now.Format("2006/01/02"), uuid.New())
}

// ArchiverMetrics holds archiver counters.
type ArchiverMetrics struct {
	AlertsArchived int64
	Batches        int64
	Errors         int64
}

// Metrics returns current archiver metrics.
func (a *Archiver) Metrics() ArchiverMetrics {
	return ArchiverMetrics{
		AlertsArchived: a.archived.Load(),
		Batches:        a.batches.Load(),
		Errors:         a.errors.Load(),
	}
}
