// Package config handles configuration loading for the triage service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"soc-triage/internal/classify"
	"soc-triage/internal/consumer"
	"soc-triage/internal/kafka"
	"soc-triage/internal/osint"
	"soc-triage/internal/store"
	"soc-triage/internal/store/s3"
)

// Config holds the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Classify  ClassifyConfig  `yaml:"classify"`
	OSINT     OSINTConfig     `yaml:"osint"`
	Mitre     MitreConfig     `yaml:"mitre"`
	Storage   StorageConfig   `yaml:"storage"`
	Kafka     kafka.Config    `yaml:"kafka"`
	Consumer  consumer.Config `yaml:"consumer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	MaxBatchSize   int `yaml:"max_batch_size"`
	MaxPayloadSize int `yaml:"max_payload_size"`
}

// QueueConfig holds queue settings.
type QueueConfig struct {
	Size int `yaml:"size"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClassifyConfig holds classifier settings.
type ClassifyConfig struct {
	Model classify.ClientConfig `yaml:"model"`
}

// OSINTConfig holds reputation enrichment settings.
type OSINTConfig struct {
	Enricher osint.Config       `yaml:"enricher"`
	Redis    osint.RedisConfig  `yaml:"redis"`
	Provider osint.ClientConfig `yaml:"provider"`
}

// MitreConfig holds technique mapping settings.
type MitreConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	ClickHouse  store.ClickHouseConfig  `yaml:"clickhouse"`
	BatchWriter store.BatchWriterConfig `yaml:"batch_writer"`
	Archive     s3.Config               `yaml:"archive"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			MaxBatchSize:   1000,
			MaxPayloadSize: 10 * 1024 * 1024, // 10MB
		},
		Queue: QueueConfig{
			Size: 100000,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 1000,
			WindowSize:    time.Minute,
			BurstSize:     50,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health", "/metrics"},
			TrustProxy:    false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Classify: ClassifyConfig{
			Model: classify.DefaultClientConfig(),
		},
		OSINT: OSINTConfig{
			Enricher: osint.DefaultConfig(),
			Redis:    osint.DefaultRedisConfig(),
			Provider: osint.DefaultClientConfig(),
		},
		Mitre: MitreConfig{
			RulesPath: "",
		},
		Storage: StorageConfig{
			ClickHouse:  store.DefaultClickHouseConfig(),
			BatchWriter: store.DefaultBatchWriterConfig(),
			Archive:     s3.DefaultConfig(),
		},
		Kafka:    kafka.DefaultConfig(),
		Consumer: consumer.DefaultConfig(),
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SOC_TRIAGE_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("SOC_TRIAGE_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("SOC_TRIAGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if key := os.Getenv("SOC_TRIAGE_MODEL_API_KEY"); key != "" {
		c.Classify.Model.APIKey = key
		c.Classify.Model.Enabled = true
	}

	if key := os.Getenv("SOC_TRIAGE_OSINT_API_KEY"); key != "" {
		c.OSINT.Provider.APIKey = key
		c.OSINT.Provider.Enabled = true
	}

	if enabled := os.Getenv("SOC_TRIAGE_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.ClickHouse.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.OSINT.Redis.Addr = addr
		c.OSINT.Redis.Enabled = true
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}

	if enabled := os.Getenv("SOC_TRIAGE_RATELIMIT_ENABLED"); enabled == "false" {
		c.RateLimit.Enabled = false
	}

	if rps := os.Getenv("SOC_TRIAGE_RATELIMIT_RPS"); rps != "" {
		fmt.Sscanf(rps, "%d", &c.RateLimit.RequestsPerIP)
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	if c.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive")
	}

	if c.Consumer.Workers <= 0 {
		return fmt.Errorf("consumer workers must be positive")
	}

	if c.Kafka.Enabled {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}

	if c.Storage.Archive.Enabled {
		if err := c.Storage.Archive.Validate(); err != nil {
			return err
		}
	}

	return nil
}
