package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"soc-triage/internal/schema"
)

// ClickHouseConfig holds the configuration for the ClickHouse backend.
type ClickHouseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// DefaultClickHouseConfig returns the default ClickHouse configuration.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Enabled:         false,
		Hosts:           []string{"localhost:9000"},
		Database:        "triage",
		Username:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		DialTimeout:     10 * time.Second,
	}
}

// ClickHouseStore persists alerts to a ClickHouse table.
type ClickHouseStore struct {
	conn   driver.Conn
	config ClickHouseConfig
}

// NewClickHouseStore connects to ClickHouse and verifies the connection.
func NewClickHouseStore(cfg ClickHouseConfig) (*ClickHouseStore, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, WrapConnectionError("Open", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, WrapConnectionError("Ping", err)
	}

	return &ClickHouseStore{conn: conn, config: cfg}, nil
}

// alertsSchema is the alert table DDL. Nested structures are stored as
// JSON strings; flat columns carry the fields queried most.
const alertsSchema = `
CREATE TABLE IF NOT EXISTS alerts (
    event_id        UUID,
    ts              DateTime('UTC'),
    severity        LowCardinality(String),
    label           LowCardinality(String),
    confidence      Float64,
    reason          String,
    raw             String,
    iocs            String,
    osint           String,
    mitre           String,
    schema_version  LowCardinality(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(ts)
ORDER BY (ts, severity, event_id)
`

// EnsureSchema creates the alerts table if it does not exist.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.config.Database)); err != nil {
		return WrapQueryError("EnsureSchema", err)
	}
	if err := s.conn.Exec(ctx, alertsSchema); err != nil {
		return WrapQueryError("EnsureSchema", err)
	}
	return nil
}

// Persist implements Store with a single synchronous insert, so a
// storage failure surfaces to the orchestrator per the persistence
// contract. The batch writer covers the high-volume asynchronous path.
func (s *ClickHouseStore) Persist(ctx context.Context, alert *schema.Alert) error {
	batch, err := s.conn.PrepareBatch(ctx, insertAlerts)
	if err != nil {
		return WrapInsertError("Persist", err)
	}
	if err := appendAlert(batch, alert); err != nil {
		return WrapInsertError("Persist", err)
	}
	if err := batch.Send(); err != nil {
		return WrapInsertError("Persist", err)
	}
	return nil
}

// Ping checks if the connection is alive.
func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the ClickHouse connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

const insertAlerts = `
	INSERT INTO alerts (
		event_id, ts, severity, label, confidence, reason,
		raw, iocs, osint, mitre, schema_version
	)
`

func appendAlert(batch driver.Batch, alert *schema.Alert) error {
	raw, err := json.Marshal(alert.Raw)
	if err != nil {
		return fmt.Errorf("encode raw: %w", err)
	}
	iocs, err := json.Marshal(alert.IOCs)
	if err != nil {
		return fmt.Errorf("encode iocs: %w", err)
	}
	osint, err := json.Marshal(alert.OSINT)
	if err != nil {
		return fmt.Errorf("encode osint: %w", err)
	}
	mitre, err := json.Marshal(alert.MITRE)
	if err != nil {
		return fmt.Errorf("encode mitre: %w", err)
	}

	return batch.Append(
		alert.EventID,
		alert.Timestamp,
		string(alert.Severity),
		string(alert.Detection.Label),
		alert.Detection.Confidence,
		alert.Detection.Reason,
		string(raw),
		string(iocs),
		string(osint),
		string(mitre),
		schema.SchemaVersionCurrent,
	)
}
