package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// RecordFills appends fill legs to the transaction log.
func (s *Store) RecordFills(ctx context.Context, fills []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fills {
		f.ID = s.nextTxnID
		s.nextTxnID++
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		s.txns = append(s.txns, f)
	}
	return nil
}

// QueryTransactions pages through a user's fills newest-first. The log is
// append-only, so later inserts shift page boundaries but never the
// relative order of rows already returned.
func (s *Store) QueryTransactions(ctx context.Context, userID int, sandbox bool, currency string, page, pageSize int) ([]models.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Transaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.UserID != userID || t.Sandbox != sandbox {
			continue
		}
		if currency != "" && t.Currency != currency {
			continue
		}
		matched = append(matched, t)
	}

	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, len(matched), nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

// FirstTransactionTime returns the user's earliest fill timestamp in one
// namespace; ok is false when the user never traded there.
func (s *Store) FirstTransactionTime(ctx context.Context, userID int, sandbox bool) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.UserID == userID && t.Sandbox == sandbox {
			return t.CreatedAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

// GetPosition returns a user's position, zero-valued when absent.
func (s *Store) GetPosition(ctx context.Context, userID int, currency string) (models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos, ok := s.posns[walletKey{userID, currency, false}]; ok {
		return *pos, nil
	}
	return models.Position{UserID: userID, Currency: currency, Quantity: decimal.Zero, AvgCost: decimal.Zero}, nil
}

// SavePosition upserts a position row.
func (s *Store) SavePosition(ctx context.Context, pos models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := pos
	s.posns[walletKey{pos.UserID, pos.Currency, false}] = &stored
	return nil
}

// AddTraderStats increments a user's running counters.
func (s *Store) AddTraderStats(ctx context.Context, userID, trades, profitable int, realized decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[userID]
	if !ok {
		return models.ErrNotFound
	}
	st.TotalTrades += trades
	st.ProfitableTrades += profitable
	st.TotalProfitLoss = st.TotalProfitLoss.Add(realized)
	st.UpdatedAt = time.Now()
	return nil
}

// TopTraders returns up to limit stats rows ranked by cumulative realized
// profit, descending.
func (s *Store) TopTraders(ctx context.Context, limit int) ([]models.TraderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TraderStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sortTraderStats(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortTraderStats orders by profit descending, user id ascending on ties.
func sortTraderStats(stats []models.TraderStats) {
	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].TotalProfitLoss.Equal(stats[j].TotalProfitLoss) {
			return stats[i].TotalProfitLoss.GreaterThan(stats[j].TotalProfitLoss)
		}
		return stats[i].UserID < stats[j].UserID
	})
}
