// Package consumer drains the raw-event queue and runs each event
// through the alert pipeline. It serves the asynchronous ingestion
// path; the synchronous HTTP path calls the pipeline directly.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"soc-triage/internal/pipeline"
	"soc-triage/internal/queue"
	"soc-triage/internal/schema"
)

// AlertPublisher fans out finished alerts (e.g. to Kafka). Optional.
type AlertPublisher interface {
	Publish(ctx context.Context, alert *schema.Alert) error
}

// MultiPublisher publishes an alert to each of its members in order.
// All members are attempted even when one fails.
type MultiPublisher []AlertPublisher

func (m MultiPublisher) Publish(ctx context.Context, alert *schema.Alert) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config holds the consumer configuration.
type Config struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// DefaultConfig returns the default consumer configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		PollInterval: 10 * time.Millisecond,
		ShutdownWait: 30 * time.Second,
	}
}

// Consumer reads envelopes from the queue and processes them.
type Consumer struct {
	queue     *queue.RingBuffer
	pipeline  *pipeline.Pipeline
	publisher AlertPublisher
	config    Config
	logger    *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}

	consumed uint64
	errors   uint64
}

// New creates a Consumer. publisher may be nil.
func New(q *queue.RingBuffer, p *pipeline.Pipeline, publisher AlertPublisher, cfg Config) *Consumer {
	return &Consumer{
		queue:     q,
		pipeline:  p,
		publisher: publisher,
		config:    cfg,
		logger:    slog.Default().With("component", "consumer"),
		done:      make(chan struct{}),
	}
}

// Start starts the consumer workers.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.config.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	c.logger.Info("queue consumer started", "workers", c.config.Workers)
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			env, err := c.queue.PopWithTimeout(c.config.PollInterval)
			if err != nil {
				if errors.Is(err, queue.ErrQueueEmpty) {
					continue
				}
				if errors.Is(err, queue.ErrQueueClosed) {
					return
				}
				c.logger.Warn("unexpected queue error", "worker_id", id, "error", err)
				atomic.AddUint64(&c.errors, 1)
				continue
			}

			c.process(ctx, id, env)
		}
	}
}

func (c *Consumer) process(ctx context.Context, id int, env *queue.Envelope) {
	alert, err := c.pipeline.Run(ctx, env.Raw)
	if err != nil {
		// The alert may still have been computed (persistence failure);
		// it is logged by the pipeline, and the envelope is not requeued.
		c.logger.Error("pipeline run failed",
			"worker_id", id,
			"envelope_id", env.ID,
			"error", err,
		)
		atomic.AddUint64(&c.errors, 1)
		return
	}

	atomic.AddUint64(&c.consumed, 1)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, alert); err != nil {
			c.logger.Warn("alert publish failed",
				"worker_id", id,
				"event_id", alert.EventID,
				"error", err,
			)
		}
	}
}

// Stop stops the consumer gracefully, waiting up to ShutdownWait for
// workers to finish.
func (c *Consumer) Stop() {
	close(c.done)

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.logger.Info("consumer stopped", "consumed", atomic.LoadUint64(&c.consumed))
	case <-time.After(c.config.ShutdownWait):
		c.logger.Warn("consumer shutdown timed out")
	}
}

// Metrics returns consumer statistics.
func (c *Consumer) Metrics() Metrics {
	return Metrics{
		Consumed: atomic.LoadUint64(&c.consumed),
		Errors:   atomic.LoadUint64(&c.errors),
	}
}

// Metrics holds consumer statistics.
type Metrics struct {
	Consumed uint64 `json:"consumed"`
	Errors   uint64 `json:"errors"`
}
