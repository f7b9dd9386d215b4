package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func provision(t *testing.T, st *Store, email, username string) *models.User {
	t.Helper()
	user, err := st.CreateUser(context.Background(), email, username, "hash")
	require.NoError(t, err)
	require.NoError(t, st.ProvisionUser(context.Background(), user))
	return user
}

func TestCreateUser_Duplicates(t *testing.T) {
	st := New()
	ctx := context.Background()
	_, err := st.CreateUser(ctx, "a@example.com", "alice", "hash")
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, "a@example.com", "other", "hash")
	assert.True(t, models.IsValidation(err), "duplicate email must be a validation error, got %v", err)
	_, err = st.CreateUser(ctx, "other@example.com", "alice", "hash")
	assert.True(t, models.IsValidation(err), "duplicate username must be a validation error, got %v", err)
}

func TestProvisionUser_SeedsBothNamespaces(t *testing.T) {
	st := New()
	user := provision(t, st, "a@example.com", "alice")
	ctx := context.Background()

	for _, sandbox := range []bool{false, true} {
		wallets, err := st.GetWallets(ctx, user.ID, sandbox)
		require.NoError(t, err)
		require.Len(t, wallets, 3)

		byCurrency := map[string]models.Wallet{}
		for _, w := range wallets {
			byCurrency[w.Currency] = w
		}
		assert.True(t, byCurrency[models.CurrencyUSD].Balance.Equal(models.SeedFiatBalance))
		assert.True(t, byCurrency[models.CurrencyBTC].Balance.IsZero())
		assert.True(t, byCurrency[models.CurrencyETH].Balance.IsZero())
	}
}

func TestDebit_Insufficient(t *testing.T) {
	st := New()
	user := provision(t, st, "a@example.com", "alice")
	ctx := context.Background()

	err := st.Debit(ctx, user.ID, models.CurrencyUSD, dec("10001"), false)
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	// The failed debit must not touch the balance.
	b, err := st.GetBalance(ctx, user.ID, models.CurrencyUSD, false)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("10000")))

	err = st.Debit(ctx, user.ID, models.CurrencyUSD, dec("10000"), false)
	assert.NoError(t, err)
}

func TestGetBalance_UnknownWallet(t *testing.T) {
	st := New()
	_, err := st.GetBalance(context.Background(), 42, models.CurrencyBTC, false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransfer4_Atomic(t *testing.T) {
	st := New()
	buyer := provision(t, st, "a@example.com", "alice")
	seller := provision(t, st, "b@example.com", "bob")
	ctx := context.Background()
	require.NoError(t, st.Credit(ctx, seller.ID, models.CurrencyBTC, dec("1"), false))

	require.NoError(t, st.Transfer4(ctx, buyer.ID, seller.ID, models.CurrencyBTC, dec("0.5"), dec("2500"), false))

	b, _ := st.GetBalance(ctx, buyer.ID, models.CurrencyUSD, false)
	assert.True(t, b.Equal(dec("7500")))
	b, _ = st.GetBalance(ctx, buyer.ID, models.CurrencyBTC, false)
	assert.True(t, b.Equal(dec("0.5")))
	b, _ = st.GetBalance(ctx, seller.ID, models.CurrencyUSD, false)
	assert.True(t, b.Equal(dec("12500")))
	b, _ = st.GetBalance(ctx, seller.ID, models.CurrencyBTC, false)
	assert.True(t, b.Equal(dec("0.5")))
}

func TestTransfer4_InsufficientLeavesAllLegsUntouched(t *testing.T) {
	st := New()
	buyer := provision(t, st, "a@example.com", "alice")
	seller := provision(t, st, "b@example.com", "bob")
	ctx := context.Background()
	require.NoError(t, st.Credit(ctx, seller.ID, models.CurrencyBTC, dec("0.1"), false))

	// Buyer has 10000 USD; a 20000 total must fail with every leg intact,
	// including the seller's side.
	err := st.Transfer4(ctx, buyer.ID, seller.ID, models.CurrencyBTC, dec("0.1"), dec("20000"), false)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	b, _ := st.GetBalance(ctx, buyer.ID, models.CurrencyUSD, false)
	assert.True(t, b.Equal(dec("10000")))
	b, _ = st.GetBalance(ctx, seller.ID, models.CurrencyBTC, false)
	assert.True(t, b.Equal(dec("0.1")))

	// Seller short of the asset: same story.
	err = st.Transfer4(ctx, buyer.ID, seller.ID, models.CurrencyBTC, dec("0.2"), dec("100"), false)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	b, _ = st.GetBalance(ctx, buyer.ID, models.CurrencyUSD, false)
	assert.True(t, b.Equal(dec("10000")))
}

func TestMatchCandidates_Ordering(t *testing.T) {
	st := New()
	ctx := context.Background()
	u1 := provision(t, st, "a@example.com", "alice")
	u2 := provision(t, st, "b@example.com", "bob")
	u3 := provision(t, st, "c@example.com", "carol")
	taker := provision(t, st, "d@example.com", "dave")

	place := func(user *models.User, side, price string, at time.Time) *models.Order {
		order, err := st.CreateOrder(ctx, &models.Order{
			UserID:    user.ID,
			Side:      side,
			Currency:  models.CurrencyBTC,
			Amount:    dec("0.1"),
			Price:     dec(price),
			Status:    models.StatusPending,
			CreatedAt: at,
		})
		require.NoError(t, err)
		return order
	}

	now := time.Now()
	place(u1, models.SideSell, "50100", now)
	place(u2, models.SideSell, "50000", now.Add(time.Second))
	place(u3, models.SideSell, "50000", now) // same price as u2, earlier

	got, err := st.MatchCandidates(ctx, models.CurrencyBTC, models.SideSell, false, taker.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Best (lowest) ask first; earliest wins the tie.
	assert.Equal(t, u3.ID, got[0].UserID)
	assert.Equal(t, u2.ID, got[1].UserID)
	assert.Equal(t, u1.ID, got[2].UserID)

	// BUY side ranks the other way: highest bid first.
	place(u1, models.SideBuy, "49000", now)
	place(u2, models.SideBuy, "49500", now)
	bids, err := st.MatchCandidates(ctx, models.CurrencyBTC, models.SideBuy, false, taker.ID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, u2.ID, bids[0].UserID)
}

func TestMatchCandidates_ExcludesOwnerAndRespectsLimit(t *testing.T) {
	st := New()
	ctx := context.Background()
	owner := provision(t, st, "a@example.com", "alice")
	other := provision(t, st, "b@example.com", "bob")

	for i := 0; i < 3; i++ {
		for _, u := range []*models.User{owner, other} {
			_, err := st.CreateOrder(ctx, &models.Order{
				UserID:    u.ID,
				Side:      models.SideSell,
				Currency:  models.CurrencyBTC,
				Amount:    dec("0.1"),
				Price:     dec("50000"),
				Status:    models.StatusPending,
				CreatedAt: time.Now(),
			})
			require.NoError(t, err)
		}
	}

	got, err := st.MatchCandidates(ctx, models.CurrencyBTC, models.SideSell, false, owner.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		assert.NotEqual(t, owner.ID, o.UserID)
	}
}

func TestUpdateOrderAmount_CompletionRemovesFromBook(t *testing.T) {
	st := New()
	ctx := context.Background()
	owner := provision(t, st, "a@example.com", "alice")
	taker := provision(t, st, "b@example.com", "bob")

	order, err := st.CreateOrder(ctx, &models.Order{
		UserID:    owner.ID,
		Side:      models.SideSell,
		Currency:  models.CurrencyBTC,
		Amount:    dec("0.1"),
		Price:     dec("50000"),
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, st.UpdateOrderAmount(ctx, order.ID, decimal.Zero, true))

	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	candidates, err := st.MatchCandidates(ctx, models.CurrencyBTC, models.SideSell, false, taker.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates, "completed order must leave the book")

	// A second completion attempt is a no-op.
	require.NoError(t, st.UpdateOrderAmount(ctx, order.ID, dec("0.05"), false))
	got, err = st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.True(t, got.Amount.IsZero())
}

func TestQueryTransactions_Pagination(t *testing.T) {
	st := New()
	ctx := context.Background()
	user := provision(t, st, "a@example.com", "alice")

	base := time.Now()
	var fills []models.Transaction
	for i := 0; i < 5; i++ {
		fills = append(fills, models.Transaction{
			UserID:    user.ID,
			OrderID:   i + 1,
			Side:      models.SideBuy,
			Currency:  models.CurrencyBTC,
			Amount:    dec("0.1"),
			Price:     dec("50000"),
			Total:     dec("5000"),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	fills = append(fills, models.Transaction{
		UserID:    user.ID,
		OrderID:   99,
		Side:      models.SideSell,
		Currency:  models.CurrencyETH,
		Amount:    dec("1"),
		Price:     dec("3500"),
		Total:     dec("3500"),
		CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, st.RecordFills(ctx, fills))

	page1, total, err := st.QueryTransactions(ctx, user.ID, false, "", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, page1, 4)
	// Newest first.
	assert.Equal(t, models.CurrencyETH, page1[0].Currency)

	page2, _, err := st.QueryTransactions(ctx, user.ID, false, "", 2, 4)
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	btcOnly, btcTotal, err := st.QueryTransactions(ctx, user.ID, false, models.CurrencyBTC, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, btcTotal)
	assert.Len(t, btcOnly, 5)
}

func TestFirstTransactionTime(t *testing.T) {
	st := New()
	ctx := context.Background()
	user := provision(t, st, "a@example.com", "alice")

	_, ok, err := st.FirstTransactionTime(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, ok)

	first := time.Now().Add(-48 * time.Hour)
	require.NoError(t, st.RecordFills(ctx, []models.Transaction{
		{UserID: user.ID, Currency: models.CurrencyBTC, Side: models.SideBuy, Amount: dec("0.1"), Price: dec("1"), Total: dec("0.1"), CreatedAt: first},
		{UserID: user.ID, Currency: models.CurrencyBTC, Side: models.SideBuy, Amount: dec("0.1"), Price: dec("1"), Total: dec("0.1"), CreatedAt: first.Add(time.Hour)},
	}))

	got, ok, err := st.FirstTransactionTime(ctx, user.ID, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(first))
}

func TestResetSandbox(t *testing.T) {
	st := New()
	ctx := context.Background()
	user := provision(t, st, "a@example.com", "alice")

	require.NoError(t, st.Debit(ctx, user.ID, models.CurrencyUSD, dec("4000"), true))
	require.NoError(t, st.Credit(ctx, user.ID, models.CurrencyBTC, dec("2"), true))
	require.NoError(t, st.Credit(ctx, user.ID, models.CurrencyBTC, dec("1"), false))

	require.NoError(t, st.ResetSandbox(ctx, user.ID))

	b, _ := st.GetBalance(ctx, user.ID, models.CurrencyUSD, true)
	assert.True(t, b.Equal(dec("10000")))
	b, _ = st.GetBalance(ctx, user.ID, models.CurrencyBTC, true)
	assert.True(t, b.IsZero())

	// Real wallets must survive the reset.
	b, _ = st.GetBalance(ctx, user.ID, models.CurrencyBTC, false)
	assert.True(t, b.Equal(dec("1")))
}

func TestConcurrentCredits(t *testing.T) {
	st := New()
	ctx := context.Background()
	user := provision(t, st, "a@example.com", "alice")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.Credit(ctx, user.ID, models.CurrencyBTC, dec("0.01"), false)
		}()
	}
	wg.Wait()

	b, err := st.GetBalance(ctx, user.ID, models.CurrencyBTC, false)
	require.NoError(t, err)
	assert.True(t, b.Equal(dec("0.5")), "got %s", b)
}

func TestTopTraders_Ordering(t *testing.T) {
	st := New()
	ctx := context.Background()
	u1 := provision(t, st, "a@example.com", "alice")
	u2 := provision(t, st, "b@example.com", "bob")
	u3 := provision(t, st, "c@example.com", "carol")

	require.NoError(t, st.AddTraderStats(ctx, u1.ID, 4, 2, dec("120.50")))
	require.NoError(t, st.AddTraderStats(ctx, u2.ID, 2, 2, dec("300")))
	require.NoError(t, st.AddTraderStats(ctx, u3.ID, 1, 0, dec("-40")))

	top, err := st.TopTraders(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, u2.ID, top[0].UserID)
	assert.Equal(t, "bob", top[0].Username)
	assert.Equal(t, u1.ID, top[1].UserID)

	// Increments accumulate.
	require.NoError(t, st.AddTraderStats(ctx, u3.ID, 1, 1, dec("500")))
	top, err = st.TopTraders(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, u3.ID, top[0].UserID)
	assert.Equal(t, 2, top[0].TotalTrades)
	assert.True(t, top[0].TotalProfitLoss.Equal(dec("460")))
}
