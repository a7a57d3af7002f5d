package osint

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"soc-triage/internal/schema"
)

// RedisConfig holds Redis connection settings for the shared
// reputation cache.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// DefaultRedisConfig returns the default Redis cache configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "osint:",
	}
}

// RedisCache is a Cache backed by Redis, shared between instances so
// concurrent pipeline runs on different hosts reuse each other's
// lookups. Redis errors degrade to cache misses; they never fail
// enrichment.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: slog.Default().With("component", "osint-redis-cache"),
	}, nil
}

// Get returns the cached finding for a value if present.
func (c *RedisCache) Get(ctx context.Context, value string) (schema.Finding, bool) {
	data, err := c.client.Get(ctx, c.prefix+value).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis get failed", "error", err)
		}
		return schema.Finding{}, false
	}

	var finding schema.Finding
	if err := json.Unmarshal(data, &finding); err != nil {
		c.logger.Warn("corrupt cache entry dropped", "key", value, "error", err)
		return schema.Finding{}, false
	}
	return finding, true
}

// Set stores a finding for a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, value string, finding schema.Finding, ttl time.Duration) {
	data, err := json.Marshal(finding)
	if err != nil {
		c.logger.Warn("failed to encode finding", "key", value, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+value, data, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "key", value, "error", err)
	}
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
