package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Supported currencies. USD is the quote currency for both crypto assets.
const (
	CurrencyUSD = "USD"
	CurrencyBTC = "BTC"
	CurrencyETH = "ETH"
)

// CryptoCurrencies lists the tradable assets, i.e. every currency except USD.
var CryptoCurrencies = []string{CurrencyBTC, CurrencyETH}

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order lifecycle statuses. COMPLETED is terminal: the remaining amount is
// frozen at zero and the order is never touched again.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// DustThreshold is the remaining amount at or below which an order counts
// as fully filled.
var DustThreshold = decimal.New(1, -8) // 0.00000001

// SeedFiatBalance is the USD allocation given to every new wallet pair.
var SeedFiatBalance = decimal.NewFromInt(10000)

// MinTradeAmount returns the minimum order amount per asset. Unknown
// currencies report a zero minimum; validation rejects them separately.
func MinTradeAmount(currency string) decimal.Decimal {
	switch currency {
	case CurrencyBTC:
		return decimal.New(1, -3) // 0.001
	case CurrencyETH:
		return decimal.New(1, -2) // 0.01
	}
	return decimal.Zero
}

// IsCrypto reports whether the currency is a tradable crypto asset.
func IsCrypto(currency string) bool {
	for _, c := range CryptoCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// User represents a registered user
type User struct {
	ID           int
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Wallet is one (user, namespace, currency) balance row. Sandbox marks the
// isolated paper-trading namespace; real and sandbox rows never mix.
type Wallet struct {
	ID       int             `json:"id"`
	UserID   int             `json:"user_id"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Sandbox  bool            `json:"sandbox"`
}

// Order represents a limit order resting on or passing through the book.
// Amount is the remaining unfilled quantity and only ever decreases.
type Order struct {
	ID          int             `json:"id"`
	UserID      int             `json:"user_id"`
	Side        string          `json:"side"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	Status      string          `json:"status"`
	Sandbox     bool            `json:"sandbox"`
	CreatedAt   time.Time       `json:"created_at"` // Used for time priority
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Fillable reports whether the order still has a matchable amount.
func (o *Order) Fillable() bool {
	return o.Status == StatusPending && o.Amount.GreaterThan(DustThreshold)
}

// Transaction is one settled fill leg. Two rows are written per match, one
// per counterparty. Rows are immutable once inserted.
type Transaction struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	OrderID   int             `json:"order_id"`
	Side      string          `json:"side"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Sandbox   bool            `json:"sandbox"`
	CreatedAt time.Time       `json:"created_at"`
}

// TraderStats is the running per-user aggregate behind the leaderboard.
// Only real-namespace settlements update it.
type TraderStats struct {
	UserID           int             `json:"user_id"`
	Username         string          `json:"username"`
	TotalTrades      int             `json:"total_trades"`
	ProfitableTrades int             `json:"profitable_trades"`
	TotalProfitLoss  decimal.Decimal `json:"total_profit_loss"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Position tracks a user's open real-namespace holding of one asset as a
// quantity and its average acquisition cost, for realized P/L attribution.
type Position struct {
	UserID   int
	Currency string
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// PriceSnapshot is the cached asset price table.
type PriceSnapshot struct {
	Prices      map[string]decimal.Decimal `json:"prices"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// Price returns the cached fiat price for a currency; USD is always 1.
func (s PriceSnapshot) Price(currency string) decimal.Decimal {
	if currency == CurrencyUSD {
		return decimal.NewFromInt(1)
	}
	return s.Prices[currency]
}
