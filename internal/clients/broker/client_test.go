package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceBuyOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/orders", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTC", req["symbol"])
		assert.Equal(t, "buy", req["side"])
		assert.Equal(t, 100.0, req["notional_usdc"])

		fmt.Fprint(w, `{"order_id":"ord-1","symbol":"BTC","quantity":0.0025,"price":40000,"cost_usdc":100}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())

	fill, err := client.PlaceBuyOrder("BTC", 100)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", fill.OrderID)
	assert.Equal(t, 0.0025, fill.Quantity)
	assert.Equal(t, 100.0, fill.CostUsdc)
}

func TestPlaceBuyOrder_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := client.PlaceBuyOrder("BTC", 100)
	assert.Error(t, err)
}

func TestPlaceBuyOrder_EmptyFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"order_id":"ord-2","symbol":"BTC","quantity":0,"price":0,"cost_usdc":0}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := client.PlaceBuyOrder("BTC", 100)
	assert.Error(t, err)
}

func TestPlaceBuyOrder_NonPositiveNotional(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"}, zerolog.Nop())
	_, err := client.PlaceBuyOrder("BTC", 0)
	assert.Error(t, err)
}
