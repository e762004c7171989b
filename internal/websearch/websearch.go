// Package websearch fetches web results by scraping the Bing HTML search
// page. Results are cached in Redis per query; when Redis is unreachable
// the search proceeds uncached.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultEndpoint is the Bing HTML search page.
	DefaultEndpoint = "https://www.bing.com/search"

	// DefaultNumResults caps results when the caller passes no limit.
	DefaultNumResults = 10

	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = time.Hour
	cacheKeyPrefix  = "websearch:bing:"

	// Bing serves a degraded page to clients without a browser user agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

var (
	// ErrEmptyQuery indicates the query was empty after escaping.
	ErrEmptyQuery = errors.New("search query must not be empty")

	// ErrSearchFailed indicates a non-200 answer from the search page.
	ErrSearchFailed = errors.New("web search failed")
)

// SearchResult is one organic result from the search page.
type SearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the search page URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithCache enables result caching on client with the given TTL. A zero
// ttl takes the default.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = client
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// Client performs web searches.
type Client struct {
	http     *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
	endpoint string
	logger   *slog.Logger
}

// NewClient returns a search client with browser-like request defaults.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:     &http.Client{Timeout: defaultTimeout},
		cacheTTL: defaultCacheTTL,
		endpoint: DefaultEndpoint,
		logger:   logger.With("component", "websearch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to numResults organic results for query, consulting
// the cache first. A numResults of zero or less takes the default limit.
func (c *Client) Search(ctx context.Context, query string, numResults int) ([]SearchResult, error) {
	query = EscapeQuery(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if numResults <= 0 {
		numResults = DefaultNumResults
	}

	if cached, ok := c.cachedResults(ctx, query); ok {
		return limitResults(cached, numResults), nil
	}

	results, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	c.storeResults(ctx, query, results)
	return limitResults(results, numResults), nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]SearchResult, error) {
	searchURL := c.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchFailed, resp.StatusCode)
	}

	results, err := ParseResults(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}
	return results, nil
}

func (c *Client) cachedResults(ctx context.Context, query string) ([]SearchResult, bool) {
	if c.cache == nil {
		return nil, false
	}

	data, err := c.cache.Get(ctx, cacheKeyPrefix+query).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("search cache read failed", "error", err)
		}
		return nil, false
	}

	var results []SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("corrupt search cache entry dropped", "query", query)
		_ = c.cache.Del(ctx, cacheKeyPrefix+query).Err()
		return nil, false
	}
	return results, true
}

func (c *Client) storeResults(ctx context.Context, query string, results []SearchResult) {
	if c.cache == nil || len(results) == 0 {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKeyPrefix+query, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("search cache write failed", "error", err)
	}
}

func limitResults(results []SearchResult, limit int) []SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

// EscapeQuery normalizes a raw query for the search page: quotes are
// dropped and whitespace runs collapse to single spaces.
func EscapeQuery(query string) string {
	query = strings.ReplaceAll(query, `"`, " ")
	query = strings.ReplaceAll(query, "'", " ")
	return strings.Join(strings.Fields(query), " ")
}
