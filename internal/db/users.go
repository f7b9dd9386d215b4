package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"papertrade/internal/models"
)

// CreateUser inserts a new user row. Wallet and stats provisioning is a
// separate step (ProvisionUser) so registration stays one code path.
// A unique-constraint hit surfaces as a validation error: two concurrent
// registrations can both pass the caller's duplicate pre-check, and the
// loser is a bad request, not a server fault.
func (db *DB) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id, email, username, password_hash, created_at",
		email, username, passwordHash).Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.Validationf("email or username already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "username", username)
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (db *DB) getUser(ctx context.Context, column, value string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, email, username, password_hash, created_at FROM users WHERE "+column+" = $1",
		value).Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ProvisionUser creates the paired real/sandbox wallet rows (seed USD, zero
// crypto) and the initial trader stats row for a freshly registered user.
func (db *DB) ProvisionUser(ctx context.Context, user *models.User) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sandbox := range []bool{false, true} {
		_, err = tx.Exec(ctx,
			"INSERT INTO wallets (user_id, currency, balance, sandbox) VALUES ($1, $2, $3, $4)",
			user.ID, models.CurrencyUSD, models.SeedFiatBalance.String(), sandbox)
		if err != nil {
			return fmt.Errorf("failed to create USD wallet: %w", err)
		}
		for _, currency := range models.CryptoCurrencies {
			_, err = tx.Exec(ctx,
				"INSERT INTO wallets (user_id, currency, balance, sandbox) VALUES ($1, $2, 0, $3)",
				user.ID, currency, sandbox)
			if err != nil {
				return fmt.Errorf("failed to create %s wallet: %w", currency, err)
			}
		}
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO trader_stats (user_id, username) VALUES ($1, $2)",
		user.ID, user.Username)
	if err != nil {
		return fmt.Errorf("failed to create trader stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
