// Package stats keeps the per-trader running aggregates behind the
// leaderboard. Profit attribution uses the average-cost method: each BUY
// fill folds into the user's average acquisition cost for the asset, and
// each SELL fill realizes (fill price - average cost) x amount. Assets
// deposited from outside carry a zero basis, so their disposal counts
// entirely as profit. Only real-namespace fills reach this package.
package stats

import (
	"context"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// Store is the persistence the aggregator needs.
type Store interface {
	GetPosition(ctx context.Context, userID int, currency string) (models.Position, error)
	SavePosition(ctx context.Context, pos models.Position) error
	AddTraderStats(ctx context.Context, userID, trades, profitable int, realized decimal.Decimal) error
	TopTraders(ctx context.Context, limit int) ([]models.TraderStats, error)
}

// Aggregator derives trader stats from settlement events.
type Aggregator struct {
	store Store
}

// NewAggregator builds an aggregator over the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecordFill folds one settled fill leg into the owner's stats. The trade
// counter always increments; P/L and the profitable counter move only on
// SELL legs, where cost basis is realized.
func (a *Aggregator) RecordFill(ctx context.Context, fill models.Transaction) error {
	pos, err := a.store.GetPosition(ctx, fill.UserID, fill.Currency)
	if err != nil {
		return err
	}

	if fill.Side == models.SideBuy {
		newQty := pos.Quantity.Add(fill.Amount)
		// Weighted average of the old basis and this fill's price.
		cost := pos.Quantity.Mul(pos.AvgCost).Add(fill.Amount.Mul(fill.Price))
		pos.AvgCost = cost.DivRound(newQty, 8)
		pos.Quantity = newQty
		if err := a.store.SavePosition(ctx, pos); err != nil {
			return err
		}
		return a.store.AddTraderStats(ctx, fill.UserID, 1, 0, decimal.Zero)
	}

	realized := fill.Price.Sub(pos.AvgCost).Mul(fill.Amount).Round(2)
	pos.Quantity = pos.Quantity.Sub(fill.Amount)
	if pos.Quantity.LessThanOrEqual(decimal.Zero) {
		pos.Quantity = decimal.Zero
		pos.AvgCost = decimal.Zero
	}
	if err := a.store.SavePosition(ctx, pos); err != nil {
		return err
	}

	profitable := 0
	if realized.GreaterThan(decimal.Zero) {
		profitable = 1
	}
	return a.store.AddTraderStats(ctx, fill.UserID, 1, profitable, realized)
}

// LeaderboardEntry is one ranked row of the public leaderboard.
type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      int             `json:"user_id"`
	Username    string          `json:"username"`
	TotalTrades int             `json:"total_trades"`
	WinRate     decimal.Decimal `json:"win_rate"`
	ProfitLoss  decimal.Decimal `json:"profit_loss"`
}

// Leaderboard returns up to limit traders ranked by cumulative realized
// profit descending. Win rate is profitable trades over total, as a
// percentage with one decimal.
func (a *Aggregator) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	top, err := a.store.TopTraders(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(top))
	for i, s := range top {
		winRate := decimal.Zero
		if s.TotalTrades > 0 {
			winRate = decimal.NewFromInt(int64(s.ProfitableTrades)).
				Div(decimal.NewFromInt(int64(s.TotalTrades))).
				Mul(decimal.NewFromInt(100)).Round(1)
		}
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			UserID:      s.UserID,
			Username:    s.Username,
			TotalTrades: s.TotalTrades,
			WinRate:     winRate,
			ProfitLoss:  s.TotalProfitLoss,
		}
	}
	return entries, nil
}
