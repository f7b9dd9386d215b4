package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Router wires every endpoint onto a chi mux.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(h.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Get("/api/prices", h.GetPrices)
	r.Get("/api/leaderboard", h.GetLeaderboard)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/api/auth/me", h.Me)
		r.Get("/api/wallet/balance", h.GetBalances)
		r.Post("/api/wallet/deposit", h.Deposit)
		r.Post("/api/wallet/withdraw", h.Withdraw)
		r.Post("/api/orders/create", h.PlaceOrder)
		r.Get("/api/orders/active", h.GetActiveOrders)
		r.Get("/api/transactions/history", h.GetTransactionHistory)
		r.Post("/api/sandbox/reset", h.ResetSandbox)
		r.Get("/api/portfolio/history", h.GetPortfolioHistory)
	})

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
