package memstore

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// GetWallets returns a user's balance rows in one namespace.
func (s *Store) GetWallets(ctx context.Context, userID int, sandbox bool) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID && w.Sandbox == sandbox {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// GetBalance returns one wallet balance or models.ErrNotFound.
func (s *Store) GetBalance(ctx context.Context, userID int, currency string, sandbox bool) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletKey{userID, currency, sandbox}]
	if !ok {
		return decimal.Decimal{}, models.ErrNotFound
	}
	return w.Balance, nil
}

// Credit adds amount to a wallet balance.
func (s *Store) Credit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletKey{userID, currency, sandbox}]
	if !ok {
		return models.ErrNotFound
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

// Debit subtracts amount from a wallet balance, rejecting overdraws with
// the balance untouched.
func (s *Store) Debit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletKey{userID, currency, sandbox}]
	if !ok {
		return models.ErrNotFound
	}
	if w.Balance.LessThan(amount) {
		return models.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

// Transfer4 applies the four settlement legs as one unit under the store
// lock: both debits are verified before the first mutation, so a failed
// transfer leaves every balance untouched.
func (s *Store) Transfer4(ctx context.Context, buyerID, sellerID int, currency string, amount, total decimal.Decimal, sandbox bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buyerUSD, ok1 := s.wallets[walletKey{buyerID, models.CurrencyUSD, sandbox}]
	buyerAsset, ok2 := s.wallets[walletKey{buyerID, currency, sandbox}]
	sellerAsset, ok3 := s.wallets[walletKey{sellerID, currency, sandbox}]
	sellerUSD, ok4 := s.wallets[walletKey{sellerID, models.CurrencyUSD, sandbox}]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.ErrNotFound
	}

	if buyerUSD.Balance.LessThan(total) || sellerAsset.Balance.LessThan(amount) {
		return models.ErrInsufficientFunds
	}

	buyerUSD.Balance = buyerUSD.Balance.Sub(total)
	buyerAsset.Balance = buyerAsset.Balance.Add(amount)
	sellerAsset.Balance = sellerAsset.Balance.Sub(amount)
	sellerUSD.Balance = sellerUSD.Balance.Add(total)
	return nil
}

// ResetSandbox restores a user's sandbox wallets to the seed allocation.
func (s *Store) ResetSandbox(ctx context.Context, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.UserID != userID || !w.Sandbox {
			continue
		}
		if w.Currency == models.CurrencyUSD {
			w.Balance = models.SeedFiatBalance
		} else {
			w.Balance = decimal.Zero
		}
	}
	return nil
}
