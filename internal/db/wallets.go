package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// GetWallets retrieves a user's balance rows in one namespace.
func (db *DB) GetWallets(ctx context.Context, userID int, sandbox bool) ([]models.Wallet, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, currency, balance::text, sandbox FROM wallets WHERE user_id = $1 AND sandbox = $2 ORDER BY currency",
		userID, sandbox)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets: %w", err)
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		var balance string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Currency, &balance, &w.Sandbox); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		if w.Balance, err = parseDecimal(balance); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetBalance returns one wallet balance, or models.ErrNotFound when the row
// was never provisioned.
func (db *DB) GetBalance(ctx context.Context, userID int, currency string, sandbox bool) (decimal.Decimal, error) {
	var balance string
	err := db.Pool.QueryRow(ctx,
		"SELECT balance::text FROM wallets WHERE user_id = $1 AND currency = $2 AND sandbox = $3",
		userID, currency, sandbox).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, models.ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseDecimal(balance)
}

// Credit atomically adds amount to a wallet balance.
func (db *DB) Credit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE wallets SET balance = balance + $1 WHERE user_id = $2 AND currency = $3 AND sandbox = $4",
		amount.String(), userID, currency, sandbox)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Debit atomically subtracts amount from a wallet balance. The update only
// applies when the post-debit balance stays non-negative; otherwise the
// balance is untouched and models.ErrInsufficientFunds is returned.
func (db *DB) Debit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE wallets SET balance = balance - $1 WHERE user_id = $2 AND currency = $3 AND sandbox = $4 AND balance >= $1",
		amount.String(), userID, currency, sandbox)
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from an overdraw.
		if _, err := db.GetBalance(ctx, userID, currency, sandbox); err != nil {
			return err
		}
		return models.ErrInsufficientFunds
	}
	return nil
}

// Transfer4 settles one match atomically: debit buyer USD, credit buyer
// asset, debit seller asset, credit seller USD. All four wallet rows are
// locked in id order inside one transaction, so either every leg applies or
// none does, and concurrent transfers over the same wallets serialize.
func (db *DB) Transfer4(ctx context.Context, buyerID, sellerID int, currency string, amount, total decimal.Decimal, sandbox bool) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, user_id, currency, balance::text
		 FROM wallets
		 WHERE sandbox = $1
		   AND user_id IN ($2, $3)
		   AND currency IN ($4, $5)
		 ORDER BY id
		 FOR UPDATE`,
		sandbox, buyerID, sellerID, models.CurrencyUSD, currency)
	if err != nil {
		return fmt.Errorf("failed to lock wallets: %w", err)
	}

	type walletRow struct {
		id      int
		balance decimal.Decimal
	}
	locked := make(map[[2]interface{}]walletRow, 4)
	for rows.Next() {
		var id, userID int
		var cur, balance string
		if err := rows.Scan(&id, &userID, &cur, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan wallet: %w", err)
		}
		b, err := parseDecimal(balance)
		if err != nil {
			rows.Close()
			return err
		}
		locked[[2]interface{}{userID, cur}] = walletRow{id: id, balance: b}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read wallets: %w", err)
	}

	buyerUSD, ok1 := locked[[2]interface{}{buyerID, models.CurrencyUSD}]
	buyerAsset, ok2 := locked[[2]interface{}{buyerID, currency}]
	sellerAsset, ok3 := locked[[2]interface{}{sellerID, currency}]
	sellerUSD, ok4 := locked[[2]interface{}{sellerID, models.CurrencyUSD}]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.ErrNotFound
	}

	if buyerUSD.balance.LessThan(total) || sellerAsset.balance.LessThan(amount) {
		return models.ErrInsufficientFunds
	}

	legs := []struct {
		walletID int
		delta    decimal.Decimal
	}{
		{buyerUSD.id, total.Neg()},
		{buyerAsset.id, amount},
		{sellerAsset.id, amount.Neg()},
		{sellerUSD.id, total},
	}
	for _, leg := range legs {
		if _, err := tx.Exec(ctx,
			"UPDATE wallets SET balance = balance + $1 WHERE id = $2",
			leg.delta.String(), leg.walletID); err != nil {
			return fmt.Errorf("failed to apply transfer leg: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// ResetSandbox restores a user's sandbox wallets to the seed allocation.
// Real-namespace rows are untouched.
func (db *DB) ResetSandbox(ctx context.Context, userID int) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"UPDATE wallets SET balance = $1 WHERE user_id = $2 AND currency = $3 AND sandbox = TRUE",
		models.SeedFiatBalance.String(), userID, models.CurrencyUSD)
	if err != nil {
		return fmt.Errorf("failed to reset sandbox USD: %w", err)
	}
	_, err = tx.Exec(ctx,
		"UPDATE wallets SET balance = 0 WHERE user_id = $1 AND currency <> $2 AND sandbox = TRUE",
		userID, models.CurrencyUSD)
	if err != nil {
		return fmt.Errorf("failed to reset sandbox crypto: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
