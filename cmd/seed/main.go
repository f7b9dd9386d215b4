// Seed applies the schema and populates the database with two demo traders
// and a few crossed orders so a fresh install has balances, fills and
// leaderboard rows to look at.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/exchange"
	"papertrade/internal/models"
	"papertrade/internal/stats"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg := config.Load()
	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	migration, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read migration")
	}
	if _, err := database.Pool.Exec(ctx, string(migration)); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migration")
	}

	if _, err := database.GetUserByUsername(ctx, "trader1"); err == nil {
		log.Info().Msg("demo users already exist, nothing to seed")
		return
	}

	authSvc := auth.NewService(database, cfg.JWTSecret)
	trader1, err := authSvc.Register(ctx, "trader1@example.com", "trader1", "Password1")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create trader1")
	}
	trader2, err := authSvc.Register(ctx, "trader2@example.com", "trader2", "Password1")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create trader2")
	}

	// Give trader2 some BTC to sell; a deposit is a plain credit.
	if err := database.Credit(ctx, trader2.ID, models.CurrencyBTC, decimal.RequireFromString("0.5"), false); err != nil {
		log.Fatal().Err(err).Msg("failed to credit trader2")
	}

	engine := exchange.NewEngine(database, stats.NewAggregator(database), log)

	type seedOrder struct {
		userID int
		side   string
		amount string
		price  string
	}
	seedOrders := []seedOrder{
		{trader2.ID, models.SideSell, "0.1", "49000"},
		{trader1.ID, models.SideBuy, "0.1", "50000"},
		{trader2.ID, models.SideSell, "0.2", "51000"},
		{trader1.ID, models.SideBuy, "0.05", "48000"},
	}
	for _, so := range seedOrders {
		order, err := engine.SubmitOrder(ctx, so.userID, false, so.side, models.CurrencyBTC,
			decimal.RequireFromString(so.amount), decimal.RequireFromString(so.price))
		if err != nil {
			log.Fatal().Err(err).Str("side", so.side).Msg("failed to submit seed order")
		}
		// No workers running here; match synchronously.
		if err := engine.Match(ctx, order.ID); err != nil {
			log.Fatal().Err(err).Int("order_id", order.ID).Msg("failed to match seed order")
		}
	}

	log.Info().Int("trader1", trader1.ID).Int("trader2", trader2.ID).Msg("seeded demo data")
}
