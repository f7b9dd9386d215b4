package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/models"
)

// RecordFills appends settled fill legs to the transaction log. The log is
// insert-only; there is no update or delete path.
func (db *DB) RecordFills(ctx context.Context, fills []models.Transaction) error {
	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(
			"INSERT INTO transactions (user_id, order_id, side, currency, amount, price, total, sandbox) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			f.UserID, f.OrderID, f.Side, f.Currency, f.Amount.String(), f.Price.String(), f.Total.String(), f.Sandbox)
	}
	results := db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range fills {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to record fill: %w", err)
		}
	}
	return nil
}

// QueryTransactions returns one page of a user's fills in one namespace,
// newest first, plus the total row count for pagination. currency is an
// optional filter; empty matches everything. Paging is by offset over a
// reverse-chronological order, so concurrent inserts only prepend new rows
// and never reorder rows already returned.
func (db *DB) QueryTransactions(ctx context.Context, userID int, sandbox bool, currency string, page, pageSize int) ([]models.Transaction, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, order_id, side, currency, amount::text, price::text, total::text, sandbox, created_at
		 FROM transactions
		 WHERE user_id = $1 AND sandbox = $2 AND ($3 = '' OR currency = $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4 OFFSET $5`,
		userID, sandbox, currency, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var amount, price, total string
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Side, &t.Currency, &amount, &price, &total, &t.Sandbox, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if t.Amount, err = parseDecimal(amount); err != nil {
			return nil, 0, err
		}
		if t.Price, err = parseDecimal(price); err != nil {
			return nil, 0, err
		}
		if t.Total, err = parseDecimal(total); err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int
	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND sandbox = $2 AND ($3 = '' OR currency = $3)",
		userID, sandbox, currency).Scan(&count)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return txns, count, nil
}

// FirstTransactionTime returns the timestamp of a user's earliest fill in
// one namespace. ok is false when the user has never traded there.
func (db *DB) FirstTransactionTime(ctx context.Context, userID int, sandbox bool) (time.Time, bool, error) {
	var ts time.Time
	err := db.Pool.QueryRow(ctx,
		"SELECT created_at FROM transactions WHERE user_id = $1 AND sandbox = $2 ORDER BY created_at ASC LIMIT 1",
		userID, sandbox).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get first transaction: %w", err)
	}
	return ts, true, nil
}
