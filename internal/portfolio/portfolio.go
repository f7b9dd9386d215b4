// Package portfolio values a user's holdings against the cached price
// snapshot.
package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
	"papertrade/internal/prices"
)

// Store is the persistence the valuator needs.
type Store interface {
	GetWallets(ctx context.Context, userID int, sandbox bool) ([]models.Wallet, error)
	FirstTransactionTime(ctx context.Context, userID int, sandbox bool) (time.Time, bool, error)
}

// Valuator computes point-in-time and historical portfolio values.
type Valuator struct {
	store  Store
	prices *prices.Cache
}

// NewValuator builds a valuator over the given store and price cache.
func NewValuator(store Store, prices *prices.Cache) *Valuator {
	return &Valuator{store: store, prices: prices}
}

// CurrentValue is the USD value of every wallet in the namespace at the
// cached prices: fiat counts at face value, crypto at balance x price.
func (v *Valuator) CurrentValue(ctx context.Context, userID int, sandbox bool) (decimal.Decimal, error) {
	wallets, err := v.store.GetWallets(ctx, userID, sandbox)
	if err != nil {
		return decimal.Decimal{}, err
	}
	snapshot := v.prices.Read()
	total := decimal.Zero
	for _, w := range wallets {
		total = total.Add(w.Balance.Mul(snapshot.Price(w.Currency)))
	}
	return total.Round(2), nil
}

// Point is one sample of the portfolio value series.
type Point struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// rangeDays maps the supported history ranges; unknown ranges fall back to
// a week.
func rangeDays(r string) int {
	switch r {
	case "30d":
		return 30
	case "90d":
		return 90
	case "1y":
		return 365
	}
	return 7
}

// History reconstructs a daily value series over the requested range. With
// no transactions the series holds flat at the seed value and ends at the
// current value. Otherwise it linearly interpolates from the seed value at
// the first transaction (clamped to the range) up to the current value
// now. This is an approximation by design, not a replay of historical
// fills at historical prices.
func (v *Valuator) History(ctx context.Context, userID int, sandbox bool, rng string) ([]Point, error) {
	days := rangeDays(rng)
	current, err := v.CurrentValue(ctx, userID, sandbox)
	if err != nil {
		return nil, err
	}
	firstTx, traded, err := v.store.FirstTransactionTime(ctx, userID, sandbox)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seed := models.SeedFiatBalance

	if !traded {
		points := make([]Point, 0, days+1)
		start := now.AddDate(0, 0, -days)
		for i := 0; i <= days; i++ {
			value := seed
			if i == days {
				value = current
			}
			points = append(points, Point{Date: start.AddDate(0, 0, i), Value: value})
		}
		return points, nil
	}

	daysSinceFirst := int(now.Sub(firstTx).Hours()/24) + 1
	relevant := days
	if daysSinceFirst < relevant {
		relevant = daysSinceFirst
	}
	if relevant < 1 {
		relevant = 1
	}

	span := current.Sub(seed)
	points := make([]Point, 0, relevant+1)
	for i := 0; i <= relevant; i++ {
		progress := decimal.NewFromInt(int64(i)).DivRound(decimal.NewFromInt(int64(relevant)), 8)
		points = append(points, Point{
			Date:  now.AddDate(0, 0, -(relevant - i)),
			Value: seed.Add(span.Mul(progress)).Round(2),
		})
	}
	return points, nil
}
