// ABOUTME: Authenticated, rate-limited, cached HTTP client for the remote CRM
// ABOUTME: Converts every ordinary failure into a tagged Response instead of returning an error
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/harperreed/crmsync/config"
)

// Params are query parameters for GET/DELETE and the JSON body for POST/PUT.
type Params map[string]any

const maxBodyBytes = 10 << 20

// taxonomyEndpoints are cached with the long taxonomy TTL.
var taxonomyEndpoints = map[string]bool{
	"payment_types.json":      true,
	"funds.json":              true,
	"campaigns.json":          true,
	"gift_types.json":         true,
	"gift_categories.json":    true,
	"relationship_types":      true,
	"relationship_types.json": true,
	"membership_levels.json":  true,
}

// Client is the single gateway for remote CRM I/O. One Client, with its cache
// and rate budget, is shared by every component of a process.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      Cache
	budget     *RateBudget
	group      singleflight.Group
	logger     *slog.Logger

	// generations counts invalidations per endpoint scope so a read that
	// started before an invalidation does not repopulate the cache.
	genMu       sync.Mutex
	generations map[string]uint64

	defaultTTL  time.Duration
	taxonomyTTL time.Duration
	maxRetries  int
	retryBase   time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithBudget(b *RateBudget) Option {
	return func(c *Client) { c.budget = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client from configuration. Missing credentials are not rejected
// here; Request reports them as a ConfigurationError.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout()},
		defaultTTL:  cfg.CacheDefaultTTL(),
		taxonomyTTL: cfg.TaxonomyCacheTTL(),
		maxRetries:  cfg.MaxRetries,
		retryBase:   cfg.RetryBaseDelay(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.budget == nil {
		c.budget = NewRateBudget(cfg.RateLimitWindow(), cfg.RateLimitMaxRequests,
			cfg.MinDelayBetweenRequests(), cfg.RateLimitMaxWait())
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "remote")

	return c
}

// OpenCache builds the cache backend selected in configuration.
func OpenCache(cfg *config.Config) (Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheMemory, "":
		return NewMemoryCache(), nil
	case config.CacheBadger:
		return OpenBadgerCache(cfg.Cache.Dir)
	case config.CacheRedis:
		return NewRedisCache(cfg.Cache.RedisURL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Request issues one logical call. The returned error is non-nil only for
// configuration and programmer errors; everything else lands in the Response.
func (c *Client) Request(ctx context.Context, endpoint, method string, params Params, useCache bool) (*Response, error) {
	if c.baseURL == "" {
		return nil, &ConfigurationError{Field: "api_base_url"}
	}
	if c.apiKey == "" {
		return nil, &ConfigurationError{Field: "api_key"}
	}

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	if method != http.MethodGet || !useCache {
		return c.execute(ctx, method, endpoint, params), nil
	}

	key := cacheKey(endpoint, params)
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", "endpoint", endpoint, "error", err)
	} else if ok {
		c.logger.Debug("cache hit", "endpoint", endpoint)
		return &Response{Success: true, HTTPStatus: http.StatusOK, Data: data, Cached: true}, nil
	}

	scope := endpointScope(endpoint)
	v, _, _ := c.group.Do(key, func() (any, error) {
		// Followers share this call, so one caller's cancellation must not fail the rest.
		callCtx := context.WithoutCancel(ctx)
		gen := c.generation(scope)
		resp := c.execute(callCtx, method, endpoint, params)
		if resp.Success {
			if c.generation(scope) != gen {
				c.logger.Debug("endpoint invalidated during read, not caching", "endpoint", endpoint)
			} else if err := c.cache.Set(callCtx, key, resp.Data, c.ttlFor(endpoint)); err != nil {
				c.logger.Warn("cache write failed", "endpoint", endpoint, "error", err)
			}
		}
		return resp, nil
	})

	shared := *v.(*Response)
	return &shared, nil
}

// InvalidateEndpoint drops every cached read of endpoint regardless of params.
func (c *Client) InvalidateEndpoint(ctx context.Context, endpoint string) error {
	scope := endpointScope(endpoint)
	c.genMu.Lock()
	if c.generations == nil {
		c.generations = make(map[string]uint64)
	}
	c.generations[scope]++
	c.genMu.Unlock()

	if err := c.cache.DeletePrefix(ctx, scope); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) generation(scope string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.generations[scope]
}

func (c *Client) invalidate(ctx context.Context, endpoints ...string) {
	for _, endpoint := range endpoints {
		if err := c.InvalidateEndpoint(ctx, endpoint); err != nil {
			c.logger.Warn("cache invalidation failed", "endpoint", endpoint, "error", err)
		}
	}
}

// Budget exposes the shared rate budget.
func (c *Client) Budget() *RateBudget {
	return c.budget
}

func (c *Client) Close() error {
	return c.cache.Close()
}

func (c *Client) ttlFor(endpoint string) time.Duration {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if taxonomyEndpoints[strings.Trim(path, "/")] {
		return c.taxonomyTTL
	}
	return c.defaultTTL
}

// execute runs one call, retrying idempotent verbs on retryable failures.
// POST is never retried: the remote side has no idempotency keys for creates.
func (c *Client) execute(ctx context.Context, method, endpoint string, params Params) *Response {
	if method == http.MethodPost || c.maxRetries <= 0 {
		return c.do(ctx, method, endpoint, params)
	}

	base := c.retryBase
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(c.maxRetries), retry.NewExponential(base))

	var resp *Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp = c.do(ctx, method, endpoint, params)
		if !resp.Success && IsRetryable(resp.Err) {
			c.logger.Info("retrying request", "method", method, "endpoint", endpoint,
				"attempt", attempt, "error", resp.Err)
			return retry.RetryableError(resp.Err)
		}
		return nil
	})

	if resp == nil {
		return failed(0, &TransportError{Method: method, Endpoint: endpoint, Err: err})
	}
	return resp
}

// do performs a single HTTP round trip.
func (c *Client) do(ctx context.Context, method, endpoint string, params Params) *Response {
	if err := c.budget.Acquire(ctx); err != nil {
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			c.logger.Warn("rate budget exhausted", "endpoint", endpoint, "wait", rateErr.Wait)
			return failed(0, err)
		}
		return failed(0, &TransportError{Method: method, Endpoint: endpoint, Err: err})
	}

	req, err := c.newRequest(ctx, method, endpoint, params)
	if err != nil {
		return failed(0, &TransportError{Method: method, Endpoint: endpoint, Err: err})
	}

	c.logger.Debug("request issued", "method", method, "endpoint", endpoint)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(0, &TransportError{Method: method, Endpoint: endpoint, Err: err})
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return failed(httpResp.StatusCode, &TransportError{Method: method, Endpoint: endpoint, Err: err})
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return failed(httpResp.StatusCode, &APIError{
			Method:   method,
			Endpoint: endpoint,
			Status:   httpResp.StatusCode,
			Body:     truncate(string(bytes.TrimSpace(body)), 512),
		})
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Response{Success: true, HTTPStatus: httpResp.StatusCode}
	}
	if !json.Valid(trimmed) {
		return failed(httpResp.StatusCode, &DecodeError{Endpoint: endpoint, Err: errors.New("invalid JSON body")})
	}

	return &Response{Success: true, HTTPStatus: httpResp.StatusCode, Data: json.RawMessage(trimmed)}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params Params) (*http.Request, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
		if len(params) > 0 {
			q := u.Query()
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			u.RawQuery = q.Encode()
		}
	default:
		payload := params
		if payload == nil {
			payload = Params{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
