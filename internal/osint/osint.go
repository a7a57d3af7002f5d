// Package osint enriches extracted indicators with threat-intelligence
// reputation data. Lookups are cached by indicator value with a TTL so
// concurrent pipeline runs do not repeat work.
package osint

import (
	"context"
	"log/slog"
	"time"

	"soc-triage/internal/schema"
)

// Backend performs the actual reputation lookup for one indicator.
// Implementations must bound their own latency (timeouts, retries); a
// failed lookup never aborts enrichment of the remaining indicators.
type Backend interface {
	Lookup(ctx context.Context, indicator schema.Indicator) (schema.Finding, error)
}

// Config holds enricher settings.
type Config struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns the default enricher configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL: 600 * time.Second,
	}
}

// Enricher looks up reputation findings for indicators, reusing cached
// findings for the configured TTL. Safe for concurrent use.
type Enricher struct {
	backend Backend
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// New creates an Enricher. A nil cache gets an in-memory cache; a nil
// backend gets the deterministic heuristic stub.
func New(backend Backend, cache Cache, cfg Config) *Enricher {
	if backend == nil {
		backend = NewHeuristicStub()
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultConfig().CacheTTL
	}

	return &Enricher{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
		logger:  slog.Default().With("component", "osint"),
	}
}

// Enrich looks up every indicator and returns findings keyed by
// indicator value. When two indicators share a value the last lookup
// wins. Backend failures degrade to an unknown finding for that value.
func (e *Enricher) Enrich(ctx context.Context, indicators []schema.Indicator) map[string]schema.Finding {
	out := make(map[string]schema.Finding, len(indicators))

	for _, ind := range indicators {
		out[ind.Value] = e.lookup(ctx, ind)
	}
	return out
}

func (e *Enricher) lookup(ctx context.Context, ind schema.Indicator) schema.Finding {
	if finding, ok := e.cache.Get(ctx, ind.Value); ok {
		return finding
	}

	finding, err := e.backend.Lookup(ctx, ind)
	if err != nil {
		e.logger.Warn("reputation lookup failed, degrading to unknown",
			"indicator", ind.Value,
			"kind", ind.Kind,
			"error", err,
		)
		return schema.Finding{
			Reputation: schema.ReputationUnknown,
			Sources:    []string{},
			Tags:       []string{},
		}
	}

	// Only successful lookups are cached.
	e.cache.Set(ctx, ind.Value, finding, e.ttl)
	return finding
}
