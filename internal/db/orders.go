package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

const orderColumns = "id, user_id, side, currency, amount::text, price::text, status, sandbox, created_at, completed_at"

// CreateOrder inserts a new PENDING order and returns it with its assigned
// id and creation timestamp.
func (db *DB) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx,
		"INSERT INTO orders (user_id, side, currency, amount, price, status, sandbox) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+orderColumns,
		order.UserID, order.Side, order.Currency, order.Amount.String(), order.Price.String(), order.Status, order.Sandbox)
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrder retrieves an order by id, or models.ErrNotFound.
func (db *DB) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// MatchCandidates returns resting PENDING orders eligible to match an
// incoming order: same currency and namespace, the given (opposite) side,
// owned by someone else. Best price first — lowest ask when selecting SELL
// candidates, highest bid when selecting BUY candidates — with creation
// time ascending as the tie-break, capped at limit rows.
func (db *DB) MatchCandidates(ctx context.Context, currency, side string, sandbox bool, excludeUser, limit int) ([]models.Order, error) {
	priceOrder := "price ASC"
	if side == models.SideBuy {
		priceOrder = "price DESC"
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE currency = $1 AND side = $2 AND sandbox = $3 AND status = $4 AND user_id <> $5 ORDER BY "+priceOrder+", created_at ASC LIMIT $6",
		currency, side, sandbox, models.StatusPending, excludeUser, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get match candidates: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// UpdateOrderAmount persists a reduced remaining amount after a fill. When
// completed is true the order transitions to COMPLETED with a zeroed amount
// and a completion timestamp. The PENDING guard makes re-application after
// completion a no-op.
func (db *DB) UpdateOrderAmount(ctx context.Context, id int, amount decimal.Decimal, completed bool) error {
	var err error
	if completed {
		_, err = db.Pool.Exec(ctx,
			"UPDATE orders SET amount = 0, status = $1, completed_at = NOW() WHERE id = $2 AND status = $3",
			models.StatusCompleted, id, models.StatusPending)
	} else {
		_, err = db.Pool.Exec(ctx,
			"UPDATE orders SET amount = $1 WHERE id = $2 AND status = $3",
			amount.String(), id, models.StatusPending)
	}
	if err != nil {
		return fmt.Errorf("failed to update order amount: %w", err)
	}
	return nil
}

// GetActiveOrders retrieves a user's PENDING orders in one namespace,
// newest first.
func (db *DB) GetActiveOrders(ctx context.Context, userID int, sandbox bool) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND sandbox = $2 AND status = $3 ORDER BY created_at DESC",
		userID, sandbox, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get active orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var amount, price string
	err := row.Scan(&order.ID, &order.UserID, &order.Side, &order.Currency, &amount, &price,
		&order.Status, &order.Sandbox, &order.CreatedAt, &order.CompletedAt)
	if err != nil {
		return nil, err
	}
	if order.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if order.Price, err = parseDecimal(price); err != nil {
		return nil, err
	}
	return &order, nil
}
