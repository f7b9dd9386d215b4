package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// Store is the persistence surface the engine needs. Both the Postgres
// store and the in-memory store satisfy it.
type Store interface {
	// GetOrder returns the order or models.ErrNotFound.
	GetOrder(ctx context.Context, id int) (*models.Order, error)

	// CreateOrder persists a new PENDING order and returns it with its
	// assigned id and creation timestamp.
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)

	// MatchCandidates returns resting PENDING orders on the given side for
	// the currency and namespace, excluding those owned by excludeUser,
	// best price first (lowest for SELL candidates, highest for BUY
	// candidates) with earliest creation time breaking ties, capped at
	// limit rows.
	MatchCandidates(ctx context.Context, currency, side string, sandbox bool, excludeUser, limit int) ([]models.Order, error)

	// UpdateOrderAmount stores the reduced remaining amount. When completed
	// is true the order transitions to COMPLETED with a zeroed amount and a
	// completion timestamp; the transition is one-way.
	UpdateOrderAmount(ctx context.Context, id int, amount decimal.Decimal, completed bool) error

	// GetBalance returns the wallet balance, or models.ErrNotFound when the
	// wallet row was never provisioned.
	GetBalance(ctx context.Context, userID int, currency string, sandbox bool) (decimal.Decimal, error)

	// Transfer4 settles one match as a single atomic unit: debit buyer's
	// USD by total, credit buyer's asset by amount, debit seller's asset by
	// amount, credit seller's USD by total. Either all four legs apply or
	// none do. Returns models.ErrInsufficientFunds when a debit would
	// overdraw, leaving every balance untouched.
	Transfer4(ctx context.Context, buyerID, sellerID int, currency string, amount, total decimal.Decimal, sandbox bool) error

	// RecordFills appends settled fill legs to the transaction log.
	RecordFills(ctx context.Context, fills []models.Transaction) error
}

// StatsRecorder receives one settled fill leg per counterparty for
// real-namespace trades. Implemented by the stats aggregator.
type StatsRecorder interface {
	RecordFill(ctx context.Context, fill models.Transaction) error
}
