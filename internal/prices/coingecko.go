package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

const coingeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin,ethereum&vs_currencies=usd"

// CoinGeckoClient fetches spot prices from the CoinGecko simple-price API.
type CoinGeckoClient struct {
	HTTP *http.Client
	URL  string
}

// NewCoinGeckoClient returns a client with a bounded request timeout so a
// hung feed can never stall the poll loop past one interval.
func NewCoinGeckoClient() *CoinGeckoClient {
	return &CoinGeckoClient{
		HTTP: &http.Client{Timeout: 10 * time.Second},
		URL:  coingeckoURL,
	}
}

// FetchPrices implements Fetcher.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}

	// json.Number keeps the quoted digits intact for decimal parsing.
	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko: malformed response: %w", err)
	}

	ids := map[string]string{
		"bitcoin":  models.CurrencyBTC,
		"ethereum": models.CurrencyETH,
	}
	out := make(map[string]decimal.Decimal, len(ids))
	for id, asset := range ids {
		raw, ok := body[id]["usd"]
		if !ok {
			return nil, fmt.Errorf("coingecko: no usd price for %s", id)
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("coingecko: bad price for %s: %w", id, err)
		}
		out[asset] = price
	}
	return out, nil
}
