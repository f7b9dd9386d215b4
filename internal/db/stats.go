package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// GetPosition returns a user's average-cost position for one asset. A user
// with no position gets a zero-quantity, zero-cost sentinel.
func (db *DB) GetPosition(ctx context.Context, userID int, currency string) (models.Position, error) {
	pos := models.Position{UserID: userID, Currency: currency, Quantity: decimal.Zero, AvgCost: decimal.Zero}
	var quantity, avgCost string
	err := db.Pool.QueryRow(ctx,
		"SELECT quantity::text, avg_cost::text FROM positions WHERE user_id = $1 AND currency = $2",
		userID, currency).Scan(&quantity, &avgCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return pos, nil
	}
	if err != nil {
		return pos, fmt.Errorf("failed to get position: %w", err)
	}
	if pos.Quantity, err = parseDecimal(quantity); err != nil {
		return pos, err
	}
	if pos.AvgCost, err = parseDecimal(avgCost); err != nil {
		return pos, err
	}
	return pos, nil
}

// SavePosition upserts a user's position row.
func (db *DB) SavePosition(ctx context.Context, pos models.Position) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO positions (user_id, currency, quantity, avg_cost) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, currency) DO UPDATE SET quantity = EXCLUDED.quantity, avg_cost = EXCLUDED.avg_cost`,
		pos.UserID, pos.Currency, pos.Quantity.String(), pos.AvgCost.String())
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// AddTraderStats atomically increments a user's running counters.
func (db *DB) AddTraderStats(ctx context.Context, userID, trades, profitable int, realized decimal.Decimal) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE trader_stats
		 SET total_trades = total_trades + $1,
		     profitable_trades = profitable_trades + $2,
		     total_profit_loss = total_profit_loss + $3,
		     updated_at = NOW()
		 WHERE user_id = $4`,
		trades, profitable, realized.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to update trader stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TopTraders returns up to limit stats rows ranked by cumulative realized
// profit, descending.
func (db *DB) TopTraders(ctx context.Context, limit int) ([]models.TraderStats, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT user_id, username, total_trades, profitable_trades, total_profit_loss::text, updated_at
		 FROM trader_stats ORDER BY total_profit_loss DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top traders: %w", err)
	}
	defer rows.Close()

	var stats []models.TraderStats
	for rows.Next() {
		var s models.TraderStats
		var pl string
		if err := rows.Scan(&s.UserID, &s.Username, &s.TotalTrades, &s.ProfitableTrades, &pl, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trader stats: %w", err)
		}
		if s.TotalProfitLoss, err = parseDecimal(pl); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
