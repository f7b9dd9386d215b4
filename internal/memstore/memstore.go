// Package memstore is an in-process store with the same contract as the
// Postgres store in internal/db. It backs STORE=memory mode and the
// DB-less tests. A single mutex serializes every mutation, which trivially
// satisfies the one-in-flight-transfer-per-wallet requirement; resting
// orders are indexed per book side in a btree ordered by price-time
// priority.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"papertrade/internal/models"
)

type walletKey struct {
	userID   int
	currency string
	sandbox  bool
}

type bookKey struct {
	currency string
	side     string
	sandbox  bool
}

// bookEntry is the btree item for one resting order. Less ordering is
// best-price-first for the entry's side, then earliest creation, then id.
type bookEntry struct {
	price     decimal.Decimal
	createdAt time.Time
	orderID   int
	side      string
}

func (a bookEntry) less(b bookEntry) bool {
	if !a.price.Equal(b.price) {
		if a.side == models.SideBuy {
			return a.price.GreaterThan(b.price) // highest bid first
		}
		return a.price.LessThan(b.price) // lowest ask first
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.orderID < b.orderID
}

// Store holds all state behind one lock.
type Store struct {
	mu sync.Mutex

	users   map[int]*models.User
	wallets map[walletKey]*models.Wallet
	orders  map[int]*models.Order
	books   map[bookKey]*btree.BTreeG[bookEntry]
	txns    []models.Transaction
	posns   map[walletKey]*models.Position
	stats   map[int]*models.TraderStats

	nextUserID   int
	nextWalletID int
	nextOrderID  int
	nextTxnID    int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:        make(map[int]*models.User),
		wallets:      make(map[walletKey]*models.Wallet),
		orders:       make(map[int]*models.Order),
		books:        make(map[bookKey]*btree.BTreeG[bookEntry]),
		posns:        make(map[walletKey]*models.Position),
		stats:        make(map[int]*models.TraderStats),
		nextUserID:   1,
		nextWalletID: 1,
		nextOrderID:  1,
		nextTxnID:    1,
	}
}

func (s *Store) book(key bookKey) *btree.BTreeG[bookEntry] {
	b, ok := s.books[key]
	if !ok {
		b = btree.NewBTreeG(bookEntry.less)
		s.books[key] = b
	}
	return b
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email || u.Username == username {
			return nil, models.Validationf("email or username already exists")
		}
	}
	user := &models.User{
		ID:           s.nextUserID,
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.nextUserID++
	s.users[user.ID] = user
	out := *user
	return &out, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Email == email })
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.Username == username })
}

// GetUserByID retrieves a user by id.
func (s *Store) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.findUser(func(u *models.User) bool { return u.ID == id })
}

func (s *Store) findUser(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// ProvisionUser creates the paired real/sandbox wallets and the stats row.
func (s *Store) ProvisionUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sandbox := range []bool{false, true} {
		s.addWallet(user.ID, models.CurrencyUSD, models.SeedFiatBalance, sandbox)
		for _, currency := range models.CryptoCurrencies {
			s.addWallet(user.ID, currency, decimal.Zero, sandbox)
		}
	}
	s.stats[user.ID] = &models.TraderStats{
		UserID:          user.ID,
		Username:        user.Username,
		TotalProfitLoss: decimal.Zero,
		UpdatedAt:       time.Now(),
	}
	return nil
}

func (s *Store) addWallet(userID int, currency string, balance decimal.Decimal, sandbox bool) {
	key := walletKey{userID, currency, sandbox}
	s.wallets[key] = &models.Wallet{
		ID:       s.nextWalletID,
		UserID:   userID,
		Currency: currency,
		Balance:  balance,
		Sandbox:  sandbox,
	}
	s.nextWalletID++
}
