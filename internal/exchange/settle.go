package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bitexchange/internal/models"
)

// Settlement is the full outcome of one trade: the transaction record
// plus the post-trade state of both orders and both wallets. It is
// computed in memory and persisted as a single database transaction.
type Settlement struct {
	Transaction  models.Transaction
	BuyOrder     models.Order
	SellOrder    models.Order
	BuyerWallet  models.Wallet
	SellerWallet models.Wallet
}

// Settle executes a matched pair. The settlement price is always the
// buy order's price: the seller receives it even when they quoted
// lower, so any price improvement accrues to the seller. The sell
// order's stored price is rewritten to the settlement price.
//
// Callers have already validated compatibility via FindMatch; Settle
// re-checks only the invariants whose violation would corrupt the
// books, and an error here is a programming fault that must abort the
// enclosing transaction.
func Settle(buy models.Order, buyerWallet models.Wallet, sell models.Order, sellerWallet models.Wallet, now time.Time) (Settlement, error) {
	if buy.Side != models.SideBuy || sell.Side != models.SideSell {
		return Settlement{}, fmt.Errorf("settle: sides reversed (orders %d, %d)", buy.ID, sell.ID)
	}
	if buy.Status != models.StatusActive || sell.Status != models.StatusActive {
		return Settlement{}, fmt.Errorf("settle: order not active (orders %d, %d)", buy.ID, sell.ID)
	}
	if !buy.Quantity.Equal(sell.Quantity) {
		return Settlement{}, fmt.Errorf("settle: unequal quantities %s and %s (orders %d, %d)",
			buy.Quantity, sell.Quantity, buy.ID, sell.ID)
	}
	if buy.ProfileID == sell.ProfileID {
		return Settlement{}, fmt.Errorf("settle: self-trade for profile %d", buy.ProfileID)
	}

	quantity := buy.Quantity
	dollarAmount := buy.Notional()

	// Release the buyer's reserved dollars (spent, not credited back)
	// and hand over the bitcoin; mirror image for the seller.
	if buyerWallet.LockedDollar.LessThan(dollarAmount) {
		return Settlement{}, fmt.Errorf("settle: buyer %d locked dollar %s below %s",
			buy.ProfileID, buyerWallet.LockedDollar, dollarAmount)
	}
	if sellerWallet.LockedBitcoin.LessThan(quantity) {
		return Settlement{}, fmt.Errorf("settle: seller %d locked bitcoin %s below %s",
			sell.ProfileID, sellerWallet.LockedBitcoin, quantity)
	}
	buyerWallet.LockedDollar = buyerWallet.LockedDollar.Sub(dollarAmount)
	buyerWallet.AvailableBitcoin = buyerWallet.AvailableBitcoin.Add(quantity)
	sellerWallet.LockedBitcoin = sellerWallet.LockedBitcoin.Sub(quantity)
	sellerWallet.AvailableDollar = sellerWallet.AvailableDollar.Add(dollarAmount)

	txn := models.Transaction{ID: uuid.New(), ExecutedAt: now}

	buy.Status = models.StatusExecuted
	buy.ExecutedAt = &txn.ExecutedAt
	buy.TransactionID = &txn.ID

	sell.Price = buy.Price
	sell.Status = models.StatusExecuted
	sell.ExecutedAt = &txn.ExecutedAt
	sell.TransactionID = &txn.ID

	return Settlement{
		Transaction:  txn,
		BuyOrder:     buy,
		SellOrder:    sell,
		BuyerWallet:  buyerWallet,
		SellerWallet: sellerWallet,
	}, nil
}
