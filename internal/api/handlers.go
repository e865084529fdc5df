package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"bitexchange/internal/auth"
	"bitexchange/internal/db"
	"bitexchange/internal/exchange"
	"bitexchange/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Exchange    *exchange.Service
	AuthService *auth.AuthService
}

// NewHandler creates a new handler
func NewHandler(db *db.DB, ex *exchange.Service, authService *auth.AuthService) *Handler {
	return &Handler{DB: db, Exchange: ex, AuthService: authService}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	profile, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       profile.ID,
		"username": profile.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		profileID, err := h.AuthService.GetProfileFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "profile_id", profileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func profileIDFromContext(r *http.Request) (int, bool) {
	profileID, ok := r.Context().Value("profile_id").(int)
	return profileID, ok
}

// PlaceOrder handles order placement: the reservation is validated and
// locked, the order persisted, and a compatible counter-order settled
// against immediately if one exists.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Side     string          `json:"side"`
		Price    decimal.Decimal `json:"price"`
		Quantity decimal.Decimal `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Side != string(models.SideBuy) && req.Side != string(models.SideSell) {
		http.Error(w, `{"error": "Side must be 'buy' or 'sell'"}`, http.StatusBadRequest)
		return
	}
	if req.Price.Sign() <= 0 || req.Quantity.Sign() <= 0 {
		http.Error(w, `{"error": "Price and quantity must be positive"}`, http.StatusBadRequest)
		return
	}

	order, _, err := h.Exchange.PlaceOrder(r.Context(), profileID, models.Side(req.Side), req.Price, req.Quantity)
	if err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			http.Error(w, `{"error": "insufficient balance"}`, http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, `{"error": "Failed to place order"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newOrderResponse(*order))
}

// GetOrders retrieves the caller's orders, newest first
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.DB.GetProfileOrders(r.Context(), profileID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(newOrderResponses(orders))
}

// GetOrder retrieves one of the caller's orders by id
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	order, err := h.DB.GetOrder(r.Context(), orderID)
	if err != nil || order.ProfileID != profileID {
		http.Error(w, `{"error": "Order not found"}`, http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(newOrderResponse(*order))
}

// GetLatestOrders retrieves other profiles' active orders
func (h *Handler) GetLatestOrders(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.DB.GetLatestOrders(r.Context(), profileID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(newLatestOrderResponses(orders))
}

// CancelOrder cancels one of the caller's active orders, releasing its
// reserved funds.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	err = h.Exchange.CancelOrder(r.Context(), profileID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrNotFound):
			http.Error(w, `{"error": "Order not found"}`, http.StatusNotFound)
		case errors.Is(err, exchange.ErrForbidden):
			http.Error(w, `{"error": "Order is no longer active"}`, http.StatusForbidden)
		default:
			http.Error(w, `{"error": "Failed to cancel order"}`, http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Order canceled"})
}

// GetProfile retrieves the caller's wallet summary
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profileID, ok := profileIDFromContext(r)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	summary, err := h.Exchange.Summary(r.Context(), profileID)
	if err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			http.Error(w, `{"error": "Profile not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "Failed to retrieve profile"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(newProfileResponse(*summary))
}
