package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitexchange/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testWallet(dollar, bitcoin string) models.Wallet {
	return models.Wallet{
		ProfileID:        1,
		AvailableDollar:  d(dollar),
		AvailableBitcoin: d(bitcoin),
		LockedDollar:     decimal.Zero,
		LockedBitcoin:    decimal.Zero,
		BitcoinBaseline:  d(bitcoin),
	}
}

func TestLock_MovesAvailableToLocked(t *testing.T) {
	// Placing a sell of 1 BTC out of 5 available
	w := testWallet("0", "5")

	err := Lock(&w, models.AssetBitcoin, d("1"))
	require.NoError(t, err)

	assert.True(t, w.AvailableBitcoin.Equal(d("4")), "available bitcoin should be 4, got %s", w.AvailableBitcoin)
	assert.True(t, w.LockedBitcoin.Equal(d("1")), "locked bitcoin should be 1, got %s", w.LockedBitcoin)
	assert.True(t, w.TotalBitcoin().Equal(d("5")), "lock must not change the total")
}

func TestLock_InsufficientFunds(t *testing.T) {
	// Buy 1 @ 10 with only 5 dollars available
	w := testWallet("5", "1")

	err := Lock(&w, models.AssetDollar, d("10"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Wallet untouched on failure
	assert.True(t, w.AvailableDollar.Equal(d("5")))
	assert.True(t, w.LockedDollar.IsZero())
}

func TestLock_ExactBalance(t *testing.T) {
	w := testWallet("10", "1")

	err := Lock(&w, models.AssetDollar, d("10"))
	require.NoError(t, err)
	assert.True(t, w.AvailableDollar.IsZero())
	assert.True(t, w.LockedDollar.Equal(d("10")))
}

func TestLock_RejectsNonPositiveAmount(t *testing.T) {
	w := testWallet("10", "1")
	require.Error(t, Lock(&w, models.AssetDollar, d("0")))
	require.Error(t, Lock(&w, models.AssetDollar, d("-1")))
}

func TestUnlock_RoundTrip(t *testing.T) {
	w := testWallet("100", "5")
	before := w

	require.NoError(t, Lock(&w, models.AssetDollar, d("30")))
	require.NoError(t, Unlock(&w, models.AssetDollar, d("30")))

	assert.True(t, w.AvailableDollar.Equal(before.AvailableDollar), "lock/unlock must restore available exactly")
	assert.True(t, w.LockedDollar.Equal(before.LockedDollar), "lock/unlock must restore locked exactly")
}

func TestUnlock_ShortfallIsFatal(t *testing.T) {
	w := testWallet("100", "5")
	require.NoError(t, Lock(&w, models.AssetBitcoin, d("2")))

	err := Unlock(&w, models.AssetBitcoin, d("3"))
	require.Error(t, err, "releasing more than is locked means the books are corrupt")
	assert.NotErrorIs(t, err, ErrInsufficientFunds, "not a user-facing condition")
}

func TestReservation(t *testing.T) {
	asset, amount := Reservation(models.SideBuy, d("10"), d("2"))
	assert.Equal(t, models.AssetDollar, asset)
	assert.True(t, amount.Equal(d("20")), "buy reserves price*quantity dollars")

	asset, amount = Reservation(models.SideSell, d("10"), d("2"))
	assert.Equal(t, models.AssetBitcoin, asset)
	assert.True(t, amount.Equal(d("2")), "sell reserves quantity bitcoin")
}

func TestProfitPercent(t *testing.T) {
	w := models.Wallet{
		AvailableBitcoin: d("6"),
		LockedBitcoin:    d("0"),
		BitcoinBaseline:  d("5"),
	}
	assert.True(t, ProfitPercent(w).Equal(d("20")), "6 BTC over a 5 BTC baseline is +20 percent")

	// Locked bitcoin still counts toward the total
	w.LockedBitcoin = d("4")
	assert.True(t, ProfitPercent(w).Equal(d("100")))

	// Below baseline goes negative
	w.AvailableBitcoin = d("2.5")
	w.LockedBitcoin = decimal.Zero
	assert.True(t, ProfitPercent(w).Equal(d("-50")))
}

func TestBalancesNeverNegative(t *testing.T) {
	w := testWallet("10", "3")

	// Drive the wallet through a busy sequence; every intermediate
	// state must keep all four balances non-negative.
	ops := []struct {
		lock   bool
		asset  models.Asset
		amount string
	}{
		{true, models.AssetDollar, "10"},
		{false, models.AssetDollar, "10"},
		{true, models.AssetDollar, "7"},
		{true, models.AssetBitcoin, "3"},
		{false, models.AssetBitcoin, "1"},
		{true, models.AssetBitcoin, "1"},
	}
	for i, op := range ops {
		var err error
		if op.lock {
			err = Lock(&w, op.asset, d(op.amount))
		} else {
			err = Unlock(&w, op.asset, d(op.amount))
		}
		require.NoError(t, err, "op %d", i)
		assert.False(t, w.AvailableDollar.IsNegative(), "op %d", i)
		assert.False(t, w.LockedDollar.IsNegative(), "op %d", i)
		assert.False(t, w.AvailableBitcoin.IsNegative(), "op %d", i)
		assert.False(t, w.LockedBitcoin.IsNegative(), "op %d", i)
	}

	// Over-locking fails cleanly instead of going negative
	require.ErrorIs(t, Lock(&w, models.AssetDollar, d("100")), ErrInsufficientFunds)
	assert.False(t, w.AvailableDollar.IsNegative())
}
