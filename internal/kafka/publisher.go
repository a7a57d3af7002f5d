// Package kafka publishes finished alerts to a Kafka topic for
// downstream consumers (correlation, ticketing, archival).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"soc-triage/internal/schema"
)

// Config holds Kafka publisher settings.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		Topic:        "triage.alerts",
		BatchSize:    100,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: -1, // all
		MaxRetries:   3,
	}
}

// Validate checks the publisher configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka: topic is required")
	}
	return nil
}

// Publisher sends finished alerts to Kafka, keyed by event ID so one
// alert's updates land in one partition.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger

	published atomic.Int64
	errors    atomic.Int64
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  kafka.Snappy,
	}

	return &Publisher{
		writer: writer,
		logger: slog.Default().With("component", "kafka-publisher"),
	}, nil
}

// Publish sends one alert. Publishing is best-effort fan-out: the
// caller decides whether a failure matters (the pipeline treats it as
// non-terminal, unlike persistence).
func (p *Publisher) Publish(ctx context.Context, alert *schema.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("encode alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(alert.EventID.String()),
		Value: payload,
		Time:  alert.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("publish alert %s: %w", alert.EventID, err)
	}

	p.published.Add(1)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Metrics returns publisher statistics.
func (p *Publisher) Metrics() Metrics {
	return Metrics{
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
	}
}

// Metrics holds publisher statistics.
type Metrics struct {
	Published int64 `json:"published"`
	Errors    int64 `json:"errors"`
}
