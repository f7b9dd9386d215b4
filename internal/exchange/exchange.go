// Package exchange implements order intake, validation and the matching
// engine. Orders are accepted synchronously and matched asynchronously by a
// pool of workers; each (currency, namespace) book is pinned to one worker
// so matching passes for the same book never run concurrently.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// candidateWindow bounds how many resting orders one matching pass
// considers, keeping passes cheap on deep books.
const candidateWindow = 10

// Engine validates and matches orders against the ledger.
type Engine struct {
	store Store
	stats StatsRecorder
	log   zerolog.Logger

	pool *workerPool
}

// NewEngine builds an engine. stats may be nil when no leaderboard is kept
// (tests); workers are not started until Start is called.
func NewEngine(store Store, stats StatsRecorder, log zerolog.Logger) *Engine {
	return &Engine{store: store, stats: stats, log: log}
}

// SubmitOrder validates the order against the ledger, persists it as
// PENDING and schedules a matching pass. It returns as soon as the order is
// accepted; matching happens on a worker.
//
// Returns a *models.ValidationError for malformed input,
// models.ErrInsufficientFunds when the wallet cannot cover the order, and
// models.ErrNotFound when the wallet was never provisioned.
func (e *Engine) SubmitOrder(ctx context.Context, userID int, sandbox bool, side, currency string, amount, price decimal.Decimal) (*models.Order, error) {
	if side != models.SideBuy && side != models.SideSell {
		return nil, models.Validationf("side must be %s or %s", models.SideBuy, models.SideSell)
	}
	if !models.IsCrypto(currency) {
		return nil, models.Validationf("unsupported currency %q", currency)
	}
	if amount.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return nil, models.Validationf("amount and price must be positive")
	}
	// The ledger stores amounts at 8 decimal places and prices at 2; reject
	// anything finer instead of letting the store round it.
	if !amount.Equal(amount.Truncate(8)) {
		return nil, models.Validationf("amount supports at most 8 decimal places")
	}
	if !price.Equal(price.Truncate(2)) {
		return nil, models.Validationf("price supports at most 2 decimal places")
	}
	if minAmount := models.MinTradeAmount(currency); amount.LessThan(minAmount) {
		return nil, models.Validationf("minimum trade amount is %s %s", minAmount, currency)
	}

	if err := e.checkFunds(ctx, userID, sandbox, side, currency, amount, price); err != nil {
		return nil, err
	}

	order, err := e.store.CreateOrder(ctx, &models.Order{
		UserID:   userID,
		Side:     side,
		Currency: currency,
		Amount:   amount,
		Price:    price,
		Status:   models.StatusPending,
		Sandbox:  sandbox,
	})
	if err != nil {
		return nil, err
	}

	e.schedule(order)
	return order, nil
}

// checkFunds rejects orders the submitting wallet cannot cover: USD for the
// full notional on a BUY, the asset amount on a SELL. A concurrent fill can
// still invalidate this check before matching; Transfer4 re-verifies.
func (e *Engine) checkFunds(ctx context.Context, userID int, sandbox bool, side, currency string, amount, price decimal.Decimal) error {
	var checkCurrency string
	var needed decimal.Decimal
	if side == models.SideBuy {
		checkCurrency = models.CurrencyUSD
		needed = amount.Mul(price)
	} else {
		checkCurrency = currency
		needed = amount
	}

	balance, err := e.store.GetBalance(ctx, userID, checkCurrency, sandbox)
	if err != nil {
		return err
	}
	if balance.LessThan(needed) {
		return models.ErrInsufficientFunds
	}
	return nil
}

// Match runs one matching pass for the order. Exposed for synchronous use
// in tests and the seed tool; the server path goes through the worker pool.
// Re-running against a COMPLETED or fully drained order is a no-op.
func (e *Engine) Match(ctx context.Context, orderID int) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Fillable() {
		return nil
	}

	oppositeSide := models.SideSell
	if order.Side == models.SideSell {
		oppositeSide = models.SideBuy
	}

	candidates, err := e.store.MatchCandidates(ctx, order.Currency, oppositeSide, order.Sandbox, order.UserID, candidateWindow)
	if err != nil {
		return err
	}

	for i := range candidates {
		if !order.Fillable() {
			break
		}
		if err := e.tryMatch(ctx, order, &candidates[i]); err != nil {
			return err
		}
	}
	return nil
}

// tryMatch settles the order against one resting candidate if their limit
// prices cross. Candidate-local failures (a stale balance, a missing
// wallet) skip the candidate and the pass moves on; a failed amount write
// on the incoming order returns an error because its stored amount is now
// stale and matching on ahead would settle more than it has remaining.
func (e *Engine) tryMatch(ctx context.Context, order, resting *models.Order) error {
	buy, sell := order, resting
	if order.Side == models.SideSell {
		buy, sell = resting, order
	}
	if buy.Price.LessThan(sell.Price) {
		return nil
	}

	matchAmount := decimal.Min(order.Amount, resting.Amount)
	// Price improvement: the trade executes at the resting (earlier)
	// order's limit, never the incoming order's.
	matchPrice := resting.Price
	matchTotal := matchAmount.Mul(matchPrice).Round(2)

	err := e.store.Transfer4(ctx, buy.UserID, sell.UserID, order.Currency, matchAmount, matchTotal, order.Sandbox)
	if err != nil {
		// Stale balance (a concurrent fill drained a wallet) or a missing
		// wallet row: skip this candidate, keep the pass going.
		e.log.Warn().Err(err).
			Int("order_id", order.ID).
			Int("resting_id", resting.ID).
			Msg("settlement transfer failed, skipping candidate")
		return nil
	}

	now := time.Now()
	fills := []models.Transaction{
		{
			UserID:    buy.UserID,
			OrderID:   buy.ID,
			Side:      models.SideBuy,
			Currency:  order.Currency,
			Amount:    matchAmount,
			Price:     matchPrice,
			Total:     matchTotal,
			Sandbox:   order.Sandbox,
			CreatedAt: now,
		},
		{
			UserID:    sell.UserID,
			OrderID:   sell.ID,
			Side:      models.SideSell,
			Currency:  order.Currency,
			Amount:    matchAmount,
			Price:     matchPrice,
			Total:     matchTotal,
			Sandbox:   order.Sandbox,
			CreatedAt: now,
		},
	}
	// The ledger has already moved; a failed log write must not stop the
	// order-amount updates or the value would settle twice on the next pass.
	if err := e.store.RecordFills(ctx, fills); err != nil {
		e.log.Error().Err(err).Int("order_id", order.ID).Msg("transaction log write failed after settlement")
	}

	if !order.Sandbox && e.stats != nil {
		for _, fill := range fills {
			if err := e.stats.RecordFill(ctx, fill); err != nil {
				e.log.Error().Err(err).Int("user_id", fill.UserID).Msg("trader stats update failed")
			}
		}
	}

	// The candidate is not revisited within this pass, so a failed write on
	// its amount can only affect later passes; log it and carry on.
	if err := e.reduce(ctx, resting, matchAmount); err != nil {
		e.log.Error().Err(err).Int("order_id", resting.ID).Msg("resting order amount update failed")
	}
	if err := e.reduce(ctx, order, matchAmount); err != nil {
		return fmt.Errorf("order %d amount update failed after settlement: %w", order.ID, err)
	}
	return nil
}

// reduce decrements an order's remaining amount after a fill, completing it
// once the remainder is at or below the dust threshold. On a failed write
// the in-memory order is left untouched and the error is returned; the
// caller decides whether the order can keep matching.
func (e *Engine) reduce(ctx context.Context, order *models.Order, filled decimal.Decimal) error {
	remaining := order.Amount.Sub(filled)
	completed := remaining.LessThanOrEqual(models.DustThreshold)
	if completed {
		remaining = decimal.Zero
	}
	if err := e.store.UpdateOrderAmount(ctx, order.ID, remaining, completed); err != nil {
		return err
	}
	order.Amount = remaining
	if completed {
		order.Status = models.StatusCompleted
	}
	return nil
}
