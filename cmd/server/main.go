// Main entry point: wires the store, price cache, matching engine and HTTP
// server together.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"papertrade/internal/api"
	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/exchange"
	"papertrade/internal/memstore"
	"papertrade/internal/portfolio"
	"papertrade/internal/prices"
	"papertrade/internal/stats"
)

// store is everything the server needs from a backing store; both the
// Postgres store and the in-memory store satisfy it.
type store interface {
	api.Store
	auth.Store
	exchange.Store
	stats.Store
	portfolio.Store
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store
	if cfg.MemoryStore {
		log.Info().Msg("using in-memory store")
		st = memstore.New()
	} else {
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer database.Close()
		st = database
	}

	priceCache := prices.NewCache(prices.NewCoinGeckoClient(), log)
	go priceCache.Poll(ctx, cfg.PricePollTick)

	aggregator := stats.NewAggregator(st)
	engine := exchange.NewEngine(st, aggregator, log)
	engine.Start(cfg.MatchWorkers)
	defer func() {
		if err := engine.Stop(); err != nil {
			log.Error().Err(err).Msg("engine shutdown error")
		}
	}()

	authSvc := auth.NewService(st, cfg.JWTSecret)
	valuator := portfolio.NewValuator(st, priceCache)
	handler := api.NewHandler(st, engine, authSvc, priceCache, valuator, aggregator, log)

	router := handler.Router()

	ticker := api.NewTicker(priceCache, log)
	go ticker.Run(ctx, 5*time.Second)
	router.Get("/ws", ticker.HandleWS)

	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
