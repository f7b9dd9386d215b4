// Package prices maintains the cached USD price snapshot for the tradable
// assets. The cache is read-mostly: a single poll loop replaces the snapshot
// atomically and every reader gets the last good value without blocking on
// network I/O. Feed failures are logged and swallowed; staleness is
// preferred over unavailability.
package prices

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// Fetcher retrieves current USD prices for all supported assets. An error
// or a partial result leaves the cache untouched.
type Fetcher interface {
	FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Cache holds the latest known price snapshot.
type Cache struct {
	snapshot atomic.Pointer[models.PriceSnapshot]
	fetcher  Fetcher
	log      zerolog.Logger
}

// NewCache builds a cache seeded with a hardcoded fallback snapshot, so
// Read is defined even before the first successful refresh.
func NewCache(fetcher Fetcher, log zerolog.Logger) *Cache {
	c := &Cache{fetcher: fetcher, log: log}
	c.snapshot.Store(&models.PriceSnapshot{
		Prices: map[string]decimal.Decimal{
			models.CurrencyBTC: decimal.RequireFromString("67842.50"),
			models.CurrencyETH: decimal.RequireFromString("3524.18"),
		},
		LastUpdated: time.Now(),
	})
	return c
}

// Read returns the current snapshot. Never blocks; the data may be older
// than the poll interval.
func (c *Cache) Read() models.PriceSnapshot {
	return *c.snapshot.Load()
}

// Refresh polls the feed once. On success the snapshot is replaced
// atomically; on any failure (including missing assets) the previous
// snapshot is retained and the error is returned for logging only.
func (c *Cache) Refresh(ctx context.Context) error {
	fetched, err := c.fetcher.FetchPrices(ctx)
	if err != nil {
		return err
	}
	for _, asset := range models.CryptoCurrencies {
		price, ok := fetched[asset]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			return models.Validationf("feed returned no usable price for %s", asset)
		}
	}
	c.snapshot.Store(&models.PriceSnapshot{Prices: fetched, LastUpdated: time.Now()})
	return nil
}

// Poll refreshes immediately and then on every tick until ctx is done.
func (c *Cache) Poll(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("initial price refresh failed, serving fallback snapshot")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn().Err(err).Msg("price refresh failed, serving stale snapshot")
			}
		}
	}
}
