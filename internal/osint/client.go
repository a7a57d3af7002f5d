package osint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"soc-triage/internal/schema"
)

// ClientConfig holds configuration for a remote reputation provider.
type ClientConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultClientConfig returns the default provider client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Enabled: false,
		BaseURL: "http://localhost:8300",
		Timeout: 10 * time.Second,
	}
}

type inflight struct {
	done    chan struct{}
	finding schema.Finding
	err     error
}

// Client is a reputation Backend backed by a remote provider over HTTP.
// Duplicate concurrent lookups for the same indicator value are
// collapsed into a single outbound call.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.Mutex
	inflight map[string]*inflight
}

// NewClient creates a new provider client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		inflight: make(map[string]*inflight),
	}
}

// Lookup implements Backend. Concurrent calls for the same value share
// one outbound request; every caller gets the same result.
func (c *Client) Lookup(ctx context.Context, ind schema.Indicator) (schema.Finding, error) {
	c.mu.Lock()
	if call, ok := c.inflight[ind.Value]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.finding, call.err
		case <-ctx.Done():
			return schema.Finding{}, ctx.Err()
		}
	}

	call := &inflight{done: make(chan struct{})}
	c.inflight[ind.Value] = call
	c.mu.Unlock()

	call.finding, call.err = c.fetch(ctx, ind)

	c.mu.Lock()
	delete(c.inflight, ind.Value)
	c.mu.Unlock()
	close(call.done)

	return call.finding, call.err
}

func (c *Client) fetch(ctx context.Context, ind schema.Indicator) (schema.Finding, error) {
	endpoint := fmt.Sprintf("%s/v1/indicators/%s?kind=%s",
		c.baseURL, url.PathEscape(ind.Value), url.QueryEscape(string(ind.Kind)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return schema.Finding{}, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return schema.Finding{}, fmt.Errorf("lookup %s: %w", ind.Value, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return schema.Finding{}, fmt.Errorf("lookup %s: status %d: %s", ind.Value, resp.StatusCode, body)
	}

	var finding schema.Finding
	if err := json.NewDecoder(resp.Body).Decode(&finding); err != nil {
		return schema.Finding{}, fmt.Errorf("decode finding for %s: %w", ind.Value, err)
	}
	if !finding.Reputation.IsValid() {
		finding.Reputation = schema.ReputationUnknown
	}
	if finding.Sources == nil {
		finding.Sources = []string{}
	}
	if finding.Tags == nil {
		finding.Tags = []string{}
	}
	return finding, nil
}
