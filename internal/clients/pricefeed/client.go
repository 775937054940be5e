// Package pricefeed provides the mark-price client used to value
// holdings. It polls a simple REST ticker endpoint and caches prices
// briefly so a burst of decisions does not hammer the feed.
package pricefeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds price feed client configuration.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Client fetches mark prices over HTTP. Implements domain.MarkPriceSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
	mu         sync.Mutex
	cache      map[string]cacheEntry
	log        zerolog.Logger
}

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// tickerResponse is the feed's wire format.
type tickerResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// NewClient creates a price feed client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cacheTTL:   cfg.CacheTTL,
		cache:      make(map[string]cacheEntry),
		log:        log.With().Str("client", "pricefeed").Logger(),
	}
}

// MarkPrice returns the current mark price for symbol, serving from the
// cache when fresh.
func (c *Client) MarkPrice(symbol string) (float64, error) {
	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && time.Since(entry.fetchedAt) < c.cacheTTL {
		c.mu.Unlock()
		return entry.price, nil
	}
	c.mu.Unlock()

	price, err := c.fetch(symbol)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()

	return price, nil
}

func (c *Client) fetch(symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/ticker?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("price feed request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed returned status %d for %s", resp.StatusCode, symbol)
	}

	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("failed to decode price for %s: %w", symbol, err)
	}

	if ticker.Price <= 0 {
		return 0, fmt.Errorf("price feed returned non-positive price %.8f for %s", ticker.Price, symbol)
	}

	c.log.Debug().Str("symbol", symbol).Float64("price", ticker.Price).Msg("Fetched mark price")
	return ticker.Price, nil
}

// Invalidate drops the cached price for symbol, forcing a refetch.
func (c *Client) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.cache, symbol)
	c.mu.Unlock()
}
