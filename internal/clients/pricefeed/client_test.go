package pricefeed

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, price float64, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		symbol := r.URL.Query().Get("symbol")
		fmt.Fprintf(w, `{"symbol":%q,"price":%f}`, symbol, price)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMarkPrice(t *testing.T) {
	var hits int64
	srv := feedServer(t, 42000.5, &hits)

	client := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, zerolog.Nop())

	price, err := client.MarkPrice("BTC")
	require.NoError(t, err)
	assert.Equal(t, 42000.5, price)
}

func TestMarkPrice_CachesWithinTTL(t *testing.T) {
	var hits int64
	srv := feedServer(t, 100, &hits)

	client := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := client.MarkPrice("ETH")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits), "served from cache after first fetch")

	client.Invalidate("ETH")
	_, err := client.MarkPrice("ETH")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
}

func TestMarkPrice_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := client.MarkPrice("BTC")
	assert.Error(t, err)
}

func TestMarkPrice_RejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTC","price":0}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := client.MarkPrice("BTC")
	assert.Error(t, err)
}
