// Package provider discovers the recovery provider's published
// delegated-account-recovery configuration.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// WellKnownPath is where a participant publishes its configuration document.
const WellKnownPath = "/.well-known/delegated-account-recovery/configuration"

// Config is the subset of the provider document the save-token flow needs.
type Config struct {
	Issuer           string   `json:"issuer"`
	SaveToken        string   `json:"save-token"`
	RecoverAccount   string   `json:"recover-account,omitempty"`
	TokenMaxSize     int      `json:"token-max-size,omitempty"`
	CountersignKeys  []string `json:"countersign-pubkeys-secp256r1,omitempty"`
	PrivacyPolicyURL string   `json:"privacy-policy,omitempty"`
}

// Client fetches and caches the provider configuration. A statically
// configured document (no URL) is served as-is, which keeps tests and
// single-provider deployments free of network fetches.
type Client struct {
	configURL  string
	static     Config
	ttl        time.Duration
	httpClient *http.Client
	clock      func() time.Time

	mu        sync.Mutex
	cached    Config
	fetchedAt time.Time
}

// NewClient creates a discovery client for the document at configURL.
func NewClient(configURL string, ttl time.Duration) *Client {
	return &Client{
		configURL:  configURL,
		ttl:        ttl,
		httpClient: http.DefaultClient,
		clock:      time.Now,
	}
}

// NewStaticClient creates a client that always serves the given document.
func NewStaticClient(static Config) *Client {
	return &Client{static: static, clock: time.Now}
}

// SetHTTPClient overrides the HTTP client. Intended for tests.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// SetClock overrides the time source. Intended for tests.
func (c *Client) SetClock(clock func() time.Time) {
	if clock != nil {
		c.clock = clock
	}
}

// Get returns the provider configuration, refetching it when the cached
// copy is older than the TTL. The caller's context bounds the fetch.
func (c *Client) Get(ctx context.Context) (Config, error) {
	if c.configURL == "" {
		if c.static.Issuer == "" || c.static.SaveToken == "" {
			return Config{}, fmt.Errorf("recovery provider configuration is not set")
		}
		return c.static, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock().UTC()
	if c.cached.Issuer != "" && now.Sub(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.configURL, nil)
	if err != nil {
		return Config{}, fmt.Errorf("build provider config request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Config{}, fmt.Errorf("fetch provider config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Config{}, fmt.Errorf("fetch provider config: unexpected status %d", resp.StatusCode)
	}

	var config Config
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return Config{}, fmt.Errorf("decode provider config: %w", err)
	}
	if config.Issuer == "" || config.SaveToken == "" {
		return Config{}, fmt.Errorf("provider config is missing issuer or save-token")
	}

	c.cached = config
	c.fetchedAt = now
	return config, nil
}
