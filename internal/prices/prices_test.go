package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/models"
)

type stubFetcher struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f *stubFetcher) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.prices, f.err
}

func TestCache_FallbackBeforeFirstRefresh(t *testing.T) {
	cache := NewCache(&stubFetcher{err: errors.New("down")}, zerolog.Nop())

	snap := cache.Read()
	assert.True(t, snap.Price(models.CurrencyBTC).Equal(decimal.RequireFromString("67842.50")))
	assert.True(t, snap.Price(models.CurrencyETH).Equal(decimal.RequireFromString("3524.18")))
	assert.True(t, snap.Price(models.CurrencyUSD).Equal(decimal.NewFromInt(1)))
}

func TestCache_RefreshReplacesSnapshot(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]decimal.Decimal{
		models.CurrencyBTC: decimal.RequireFromString("70000.10"),
		models.CurrencyETH: decimal.RequireFromString("3600"),
	}}
	cache := NewCache(fetcher, zerolog.Nop())

	require.NoError(t, cache.Refresh(context.Background()))
	snap := cache.Read()
	assert.True(t, snap.Price(models.CurrencyBTC).Equal(decimal.RequireFromString("70000.10")))
	assert.True(t, snap.Price(models.CurrencyETH).Equal(decimal.RequireFromString("3600")))
}

func TestCache_FailedRefreshKeepsLastGoodSnapshot(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]decimal.Decimal{
		models.CurrencyBTC: decimal.RequireFromString("70000"),
		models.CurrencyETH: decimal.RequireFromString("3600"),
	}}
	cache := NewCache(fetcher, zerolog.Nop())
	require.NoError(t, cache.Refresh(context.Background()))

	fetcher.prices, fetcher.err = nil, errors.New("feed down")
	assert.Error(t, cache.Refresh(context.Background()))

	snap := cache.Read()
	assert.True(t, snap.Price(models.CurrencyBTC).Equal(decimal.RequireFromString("70000")))
}

func TestCache_PartialDataRejected(t *testing.T) {
	fetcher := &stubFetcher{prices: map[string]decimal.Decimal{
		models.CurrencyBTC: decimal.RequireFromString("70000"),
		// ETH missing.
	}}
	cache := NewCache(fetcher, zerolog.Nop())

	err := cache.Refresh(context.Background())
	assert.True(t, models.IsValidation(err), "partial feed data must be rejected, got %v", err)
	assert.True(t, cache.Read().Price(models.CurrencyBTC).Equal(decimal.RequireFromString("67842.50")))

	// A zero price is just as unusable.
	fetcher.prices[models.CurrencyETH] = decimal.Zero
	assert.Error(t, cache.Refresh(context.Background()))
}

func TestCoinGecko_FetchPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":68123.45},"ethereum":{"usd":3511.02}}`))
	}))
	defer srv.Close()

	client := NewCoinGeckoClient()
	client.URL = srv.URL

	got, err := client.FetchPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got[models.CurrencyBTC].Equal(decimal.RequireFromString("68123.45")))
	assert.True(t, got[models.CurrencyETH].Equal(decimal.RequireFromString("3511.02")))
}

func TestCoinGecko_ErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"RateLimited", http.StatusTooManyRequests, `{}`},
		{"MalformedJSON", http.StatusOK, `{"bitcoin":`},
		{"MissingAsset", http.StatusOK, `{"bitcoin":{"usd":68000}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewCoinGeckoClient()
			client.URL = srv.URL
			_, err := client.FetchPrices(context.Background())
			assert.Error(t, err)
		})
	}
}
