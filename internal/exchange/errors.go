package exchange

import "errors"

// User-facing failures. All three are recoverable: the request fails
// with no side effect.
var (
	// ErrInsufficientFunds rejects an order whose reservation exceeds
	// the wallet's available balance.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrForbidden rejects cancellation of an order that is not active.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound signals a nonexistent order, profile or wallet.
	ErrNotFound = errors.New("not found")
)
