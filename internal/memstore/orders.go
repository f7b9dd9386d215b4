package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// CreateOrder persists a new order and, while it is PENDING, indexes it in
// its book side for candidate selection.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *order
	stored.ID = s.nextOrderID
	s.nextOrderID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.orders[stored.ID] = &stored

	if stored.Status == models.StatusPending {
		s.book(bookKey{stored.Currency, stored.Side, stored.Sandbox}).Set(bookEntry{
			price:     stored.Price,
			createdAt: stored.CreatedAt,
			orderID:   stored.ID,
			side:      stored.Side,
		})
	}

	out := stored
	return &out, nil
}

// GetOrder retrieves an order by id or models.ErrNotFound.
func (s *Store) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *order
	return &out, nil
}

// MatchCandidates walks the book-side btree in priority order, skipping the
// excluded owner, up to limit entries.
func (s *Store) MatchCandidates(ctx context.Context, currency, side string, sandbox bool, excludeUser, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Order
	s.book(bookKey{currency, side, sandbox}).Scan(func(entry bookEntry) bool {
		order := s.orders[entry.orderID]
		if order == nil || order.Status != models.StatusPending || order.UserID == excludeUser {
			return true
		}
		out = append(out, *order)
		return len(out) < limit
	})
	return out, nil
}

// UpdateOrderAmount stores the reduced amount; completion zeroes the
// amount, stamps completed_at and drops the order from its book index.
// Already-completed orders are left untouched.
func (s *Store) UpdateOrderAmount(ctx context.Context, id int, amount decimal.Decimal, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return models.ErrNotFound
	}
	if order.Status != models.StatusPending {
		return nil
	}
	if completed {
		now := time.Now()
		order.Amount = decimal.Zero
		order.Status = models.StatusCompleted
		order.CompletedAt = &now
		s.book(bookKey{order.Currency, order.Side, order.Sandbox}).Delete(bookEntry{
			price:     order.Price,
			createdAt: order.CreatedAt,
			orderID:   order.ID,
			side:      order.Side,
		})
	} else {
		order.Amount = amount
	}
	return nil
}

// GetActiveOrders returns a user's PENDING orders in one namespace, newest
// first.
func (s *Store) GetActiveOrders(ctx context.Context, userID int, sandbox bool) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.orders {
		if order.UserID == userID && order.Sandbox == sandbox && order.Status == models.StatusPending {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
