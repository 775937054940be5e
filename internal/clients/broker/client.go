// Package broker provides the exchange order client. The API is buy-only
// on purpose: allocation never sells, weight corrections happen through
// bot sell logic outside this service.
package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/domain"
)

// Config holds broker client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client places spot market buys over HTTP. Implements domain.BrokerClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// orderRequest is the wire format for a market buy.
type orderRequest struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Notional float64 `json:"notional_usdc"`
}

// orderResponse is the exchange's fill report.
type orderResponse struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	CostUsdc float64 `json:"cost_usdc"`
}

// NewClient creates a broker client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("client", "broker").Logger(),
	}
}

// PlaceBuyOrder submits a market buy for the given notional and returns
// the fill. A non-2xx response or an unusable fill is an error; the
// caller must not commit state for unfilled orders.
func (c *Client) PlaceBuyOrder(symbol string, usdc float64) (*domain.Fill, error) {
	if usdc <= 0 {
		return nil, fmt.Errorf("broker: notional must be positive, got %.2f", usdc)
	}

	payload, err := json.Marshal(orderRequest{
		Symbol:   symbol,
		Side:     "buy",
		Notional: usdc,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: failed to encode order: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/api/orders", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("broker: order request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("broker: order rejected with status %d", resp.StatusCode)
	}

	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("broker: failed to decode fill: %w", err)
	}
	if order.Quantity <= 0 || order.CostUsdc <= 0 {
		return nil, fmt.Errorf("broker: fill for %s has no quantity or cost", symbol)
	}

	c.log.Info().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Float64("quantity", order.Quantity).
		Float64("price", order.Price).
		Float64("cost_usdc", order.CostUsdc).
		Msg("Buy order filled")

	return &domain.Fill{
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Quantity: order.Quantity,
		Price:    order.Price,
		CostUsdc: order.CostUsdc,
	}, nil
}
