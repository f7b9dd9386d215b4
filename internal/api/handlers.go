package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"papertrade/internal/auth"
	"papertrade/internal/exchange"
	"papertrade/internal/models"
	"papertrade/internal/portfolio"
	"papertrade/internal/prices"
	"papertrade/internal/stats"
)

// Store covers the queries handlers run directly, outside the engine and
// the aggregators.
type Store interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetWallets(ctx context.Context, userID int, sandbox bool) ([]models.Wallet, error)
	Credit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error
	Debit(ctx context.Context, userID int, currency string, amount decimal.Decimal, sandbox bool) error
	ResetSandbox(ctx context.Context, userID int) error
	GetActiveOrders(ctx context.Context, userID int, sandbox bool) ([]models.Order, error)
	QueryTransactions(ctx context.Context, userID int, sandbox bool, currency string, page, pageSize int) ([]models.Transaction, int, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store    Store
	Engine   *exchange.Engine
	Auth     *auth.Service
	Prices   *prices.Cache
	Valuator *portfolio.Valuator
	Stats    *stats.Aggregator
	Log      zerolog.Logger
}

// NewHandler creates a new handler
func NewHandler(store Store, engine *exchange.Engine, authSvc *auth.Service, priceCache *prices.Cache, valuator *portfolio.Valuator, aggregator *stats.Aggregator, log zerolog.Logger) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine,
		Auth:     authSvc,
		Prices:   priceCache,
		Valuator: valuator,
		Stats:    aggregator,
		Log:      log,
	}
}

type ctxKey int

const userIDKey ctxKey = 0

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps core error taxonomy onto HTTP statuses. Validation
// messages surface verbatim; everything unexpected becomes a 500 without
// leaking internals.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case models.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient balance")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.Log.Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, err, "registration failed")
		return
	}

	token, _, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, err, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
		},
	})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.Store.GetUserByID(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":         user.ID,
			"email":      user.Email,
			"username":   user.Username,
			"created_at": user.CreatedAt,
		},
	})
}

// JWTAuthMiddleware verifies bearer tokens and stashes the user id.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}

		userID, err := h.Auth.GetUserFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	return id, ok
}

func sandboxFlag(r *http.Request) bool {
	return r.URL.Query().Get("sandbox") == "true"
}

// GetPrices returns the cached price snapshot.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Prices.Read())
}

// GetBalances returns the caller's wallets in one namespace.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallets, err := h.Store.GetWallets(r.Context(), userID, sandboxFlag(r))
	if err != nil {
		h.writeDomainError(w, err, "failed to get balances")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

type fundsRequest struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Sandbox  bool            `json:"sandbox"`
}

// Deposit credits a wallet. Validation of the funding source is the account
// layer's concern; the core treats this as a plain credit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.Store.Credit, "deposit successful")
}

// Withdraw debits a wallet, rejecting overdraws.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.Store.Debit, "withdrawal successful")
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, op func(context.Context, int, string, decimal.Decimal, bool) error, okMsg string) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" || req.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, http.StatusBadRequest, "invalid currency or amount")
		return
	}
	if err := op(r.Context(), userID, req.Currency, req.Amount, req.Sandbox); err != nil {
		h.writeDomainError(w, err, "wallet update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": okMsg})
}

// PlaceOrder validates and accepts a limit order; matching runs async.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Side     string          `json:"side"`
		Currency string          `json:"currency"`
		Amount   decimal.Decimal `json:"amount"`
		Price    decimal.Decimal `json:"price"`
		Sandbox  bool            `json:"sandbox"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.Engine.SubmitOrder(r.Context(), userID, req.Sandbox, req.Side, req.Currency, req.Amount, req.Price)
	if err != nil {
		h.writeDomainError(w, err, "failed to create order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order, "message": "order created"})
}

// GetActiveOrders lists the caller's PENDING orders in one namespace.
func (h *Handler) GetActiveOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orders, err := h.Store.GetActiveOrders(r.Context(), userID, sandboxFlag(r))
	if err != nil {
		h.writeDomainError(w, err, "failed to get active orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetTransactionHistory returns one page of the caller's fills.
func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(q.Get("limit"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	txns, total, err := h.Store.QueryTransactions(r.Context(), userID, sandboxFlag(r), q.Get("currency"), page, pageSize)
	if err != nil {
		h.writeDomainError(w, err, "failed to get transactions")
		return
	}
	totalPages := (total + pageSize - 1) / pageSize
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"pagination": map[string]any{
			"page":       page,
			"limit":      pageSize,
			"totalPages": totalPages,
			"totalCount": total,
		},
	})
}

// GetLeaderboard returns the public top-100 ranking.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Stats.Leaderboard(r.Context(), 100)
	if err != nil {
		h.writeDomainError(w, err, "failed to get leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

// ResetSandbox restores the caller's sandbox wallets to the seed amounts.
func (h *Handler) ResetSandbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.Store.ResetSandbox(r.Context(), userID); err != nil {
		h.writeDomainError(w, err, "failed to reset sandbox")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "sandbox balance reset"})
}

// GetPortfolioHistory returns the interpolated value series for a range.
func (h *Handler) GetPortfolioHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	points, err := h.Valuator.History(r.Context(), userID, sandboxFlag(r), r.URL.Query().Get("range"))
	if err != nil {
		h.writeDomainError(w, err, "failed to get portfolio history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": points})
}
