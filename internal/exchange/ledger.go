package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bitexchange/internal/models"
)

// Reservation returns the asset and amount that must be locked in the
// owner's wallet for the order to rest: price*quantity dollars for a
// buy, quantity bitcoin for a sell.
func Reservation(side models.Side, price, quantity decimal.Decimal) (models.Asset, decimal.Decimal) {
	if side == models.SideBuy {
		return models.AssetDollar, price.Mul(quantity)
	}
	return models.AssetBitcoin, quantity
}

// Lock moves amount from the wallet's available balance to its locked
// balance. Returns ErrInsufficientFunds if the available balance is too
// small; the wallet is left untouched on failure.
func Lock(w *models.Wallet, asset models.Asset, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("lock amount must be positive, got %s", amount)
	}
	switch asset {
	case models.AssetDollar:
		if w.AvailableDollar.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.AvailableDollar = w.AvailableDollar.Sub(amount)
		w.LockedDollar = w.LockedDollar.Add(amount)
	case models.AssetBitcoin:
		if w.AvailableBitcoin.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.AvailableBitcoin = w.AvailableBitcoin.Sub(amount)
		w.LockedBitcoin = w.LockedBitcoin.Add(amount)
	default:
		return fmt.Errorf("unknown asset %q", asset)
	}
	return nil
}

// Unlock moves amount from the wallet's locked balance back to its
// available balance. Callers guarantee the locked balance covers the
// amount; a shortfall means the books are corrupt and is reported as an
// error so the enclosing transaction aborts rather than clamping.
func Unlock(w *models.Wallet, asset models.Asset, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("unlock amount must be positive, got %s", amount)
	}
	switch asset {
	case models.AssetDollar:
		if w.LockedDollar.LessThan(amount) {
			return fmt.Errorf("unlock %s dollar exceeds locked %s for profile %d", amount, w.LockedDollar, w.ProfileID)
		}
		w.LockedDollar = w.LockedDollar.Sub(amount)
		w.AvailableDollar = w.AvailableDollar.Add(amount)
	case models.AssetBitcoin:
		if w.LockedBitcoin.LessThan(amount) {
			return fmt.Errorf("unlock %s bitcoin exceeds locked %s for profile %d", amount, w.LockedBitcoin, w.ProfileID)
		}
		w.LockedBitcoin = w.LockedBitcoin.Sub(amount)
		w.AvailableBitcoin = w.AvailableBitcoin.Add(amount)
	default:
		return fmt.Errorf("unknown asset %q", asset)
	}
	return nil
}

// ProfitPercent computes the wallet's bitcoin profit relative to its
// creation-time baseline: (total - baseline) / baseline * 100.
func ProfitPercent(w models.Wallet) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return w.TotalBitcoin().Sub(w.BitcoinBaseline).Div(w.BitcoinBaseline).Mul(hundred)
}
