package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Asset names one of the two balances a wallet carries.
type Asset string

const (
	AssetDollar  Asset = "dollar"
	AssetBitcoin Asset = "bitcoin"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order. There is no canceled
// state: cancellation deletes the order outright.
type OrderStatus string

const (
	StatusActive   OrderStatus = "active"
	StatusExecuted OrderStatus = "executed"
)

// Profile represents a registered user
type Profile struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Wallet holds a profile's dollar and bitcoin balances, each split into
// an available and a locked sub-balance. Funds move between the two only
// through ledger operations; all four fields stay non-negative.
type Wallet struct {
	ProfileID        int
	AvailableDollar  decimal.Decimal
	LockedDollar     decimal.Decimal
	AvailableBitcoin decimal.Decimal
	LockedBitcoin    decimal.Decimal
	// BitcoinBaseline is the bitcoin balance at wallet creation, used
	// only for profit reporting. Always > 0.
	BitcoinBaseline decimal.Decimal
}

// TotalDollar returns available + locked dollars.
func (w Wallet) TotalDollar() decimal.Decimal {
	return w.AvailableDollar.Add(w.LockedDollar)
}

// TotalBitcoin returns available + locked bitcoin.
func (w Wallet) TotalBitcoin() decimal.Decimal {
	return w.AvailableBitcoin.Add(w.LockedBitcoin)
}

// Order represents a buy or sell order. An active order has its full
// reservation locked in the owner's wallet: price*quantity dollars for a
// buy, quantity bitcoin for a sell.
type Order struct {
	ID            int
	ProfileID     int
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
	ExecutedAt    *time.Time
	TransactionID *uuid.UUID
}

// Notional returns price * quantity, the dollar value of the order.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(o.Quantity)
}

// Transaction records one settled trade between a buy and a sell order.
type Transaction struct {
	ID         uuid.UUID
	ExecutedAt time.Time
}
