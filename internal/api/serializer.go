package api

import (
	"github.com/shopspring/decimal"

	"bitexchange/internal/exchange"
	"bitexchange/internal/models"
)

// timeLayout renders timestamps the way the UI expects them,
// e.g. "31/12/2021, 23:59:59".
const timeLayout = "02/01/2006, 15:04:05"

// orderResponse is the full serialization of one of the caller's own
// orders.
type orderResponse struct {
	ID            int             `json:"id"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
	ExecutedAt    *string         `json:"executed_at"`
	TransactionID *string         `json:"transaction_id"`
}

func newOrderResponse(o models.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		Side:      string(o.Side),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(timeLayout),
	}
	if o.ExecutedAt != nil {
		executedAt := o.ExecutedAt.Format(timeLayout)
		resp.ExecutedAt = &executedAt
	}
	if o.TransactionID != nil {
		id := o.TransactionID.String()
		resp.TransactionID = &id
	}
	return resp
}

func newOrderResponses(orders []models.Order) []orderResponse {
	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, newOrderResponse(o))
	}
	return resp
}

// latestOrderResponse serializes another profile's active order. The
// owner's identity and execution details stay hidden.
type latestOrderResponse struct {
	ID        int             `json:"id"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	CreatedAt string          `json:"created_at"`
}

func newLatestOrderResponses(orders []models.Order) []latestOrderResponse {
	resp := make([]latestOrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, latestOrderResponse{
			ID:        o.ID,
			Side:      string(o.Side),
			Price:     o.Price,
			Quantity:  o.Quantity,
			CreatedAt: o.CreatedAt.Format(timeLayout),
		})
	}
	return resp
}

// profileResponse is the wallet summary for the profile endpoint.
type profileResponse struct {
	Profile        string          `json:"profile"`
	ActiveOrders   int             `json:"active_orders"`
	ExecutedOrders int             `json:"executed_orders"`
	DollarBalance  decimal.Decimal `json:"dollar_balance"`
	BitcoinBalance decimal.Decimal `json:"bitcoin_balance"`
	BitcoinProfit  decimal.Decimal `json:"bitcoin_profit"`
}

func newProfileResponse(s exchange.ProfileSummary) profileResponse {
	return profileResponse{
		Profile:        s.Profile.Username,
		ActiveOrders:   s.ActiveOrders,
		ExecutedOrders: s.ExecutedOrders,
		DollarBalance:  s.DollarBalance,
		BitcoinBalance: s.BitcoinBalance,
		BitcoinProfit:  s.BitcoinProfit.Round(4),
	}
}
