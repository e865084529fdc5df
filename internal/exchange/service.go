package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"bitexchange/internal/db"
	"bitexchange/internal/models"
)

// Service ties the matching engine to the database: order placement and
// cancellation run as synchronous operations that either complete fully
// or leave no trace.
type Service struct {
	DB *db.DB
}

// NewService creates a new exchange service
func NewService(database *db.DB) *Service {
	return &Service{DB: database}
}

// sentinel results of a settlement attempt, internal to the service
var (
	errCandidateGone = errors.New("candidate order no longer active")
	errIncomingGone  = errors.New("incoming order no longer active")
)

// PlaceOrder validates the reservation against the profile's wallet,
// persists the order with its funds locked, then runs the matcher. If a
// compatible counter-order exists the trade settles immediately and the
// returned order is already executed, with the transaction it settled
// under; otherwise the order rests active and the transaction is nil.
func (s *Service) PlaceOrder(ctx context.Context, profileID int, side models.Side, price, quantity decimal.Decimal) (*models.Order, *models.Transaction, error) {
	if side != models.SideBuy && side != models.SideSell {
		return nil, nil, fmt.Errorf("side must be 'buy' or 'sell'")
	}
	if price.Sign() <= 0 {
		return nil, nil, fmt.Errorf("price must be positive")
	}
	if quantity.Sign() <= 0 {
		return nil, nil, fmt.Errorf("quantity must be positive")
	}

	order, err := s.createLocked(ctx, profileID, side, price, quantity)
	if err != nil {
		return nil, nil, err
	}

	executed, txn, err := s.matchAndSettle(ctx, *order)
	if err != nil {
		// The order itself was placed; report it alongside the failure.
		return order, nil, fmt.Errorf("order %d placed but matching failed: %w", order.ID, err)
	}
	if executed != nil {
		return executed, txn, nil
	}
	return order, nil, nil
}

// createLocked persists the order and locks its reservation in the
// owner's wallet as one transaction. Nothing changes on failure.
func (s *Service) createLocked(ctx context.Context, profileID int, side models.Side, price, quantity decimal.Decimal) (*models.Order, error) {
	asset, amount := Reservation(side, price, quantity)

	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.DB.LockFunds(ctx, tx, profileID, asset, amount)
	if err != nil {
		return nil, err
	}
	if !locked {
		// Distinguish a missing wallet from a short one.
		if _, werr := s.DB.GetWallet(ctx, profileID); werr != nil {
			if errors.Is(werr, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, werr
		}
		return nil, ErrInsufficientFunds
	}

	order, err := s.DB.CreateOrder(ctx, tx, &models.Order{
		ProfileID: profileID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Status:    models.StatusActive,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

// matchAndSettle scans compatible counter-orders oldest first and
// settles against the first one that is still active once its row lock
// is held. Candidates executed or cancelled by concurrent requests are
// skipped; the scan stops as soon as one settlement commits.
func (s *Service) matchAndSettle(ctx context.Context, incoming models.Order) (*models.Order, *models.Transaction, error) {
	candidates, err := s.DB.FindCandidates(ctx, incoming)
	if err != nil {
		return nil, nil, err
	}

	remaining := candidates
	for {
		match := FindMatch(incoming, remaining)
		if match == nil {
			return nil, nil, nil
		}

		executed, txn, err := s.settleWith(ctx, incoming.ID, match.ID)
		switch {
		case err == nil:
			return executed, txn, nil
		case errors.Is(err, errCandidateGone):
			// Raced away; keep scanning from the next candidate.
			for len(remaining) > 0 && remaining[0].ID != match.ID {
				remaining = remaining[1:]
			}
			if len(remaining) > 0 {
				remaining = remaining[1:]
			}
		case errors.Is(err, errIncomingGone):
			// A concurrent cancellation or settlement took the new
			// order out of play; the match simply did not happen.
			return nil, nil, nil
		default:
			return nil, nil, err
		}
	}
}

// settleWith executes the trade between the two orders as one database
// transaction: both order rows are locked in id order and re-checked,
// both wallet rows are locked in profile id order, and the four balance
// moves, both status transitions and the transaction record commit
// together or not at all.
func (s *Service) settleWith(ctx context.Context, incomingID, candidateID int) (*models.Order, *models.Transaction, error) {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	orders, err := s.DB.LockOrders(ctx, tx, []int{incomingID, candidateID})
	if err != nil {
		return nil, nil, err
	}
	incoming, ok := orders[incomingID]
	if !ok || incoming.Status != models.StatusActive {
		return nil, nil, errIncomingGone
	}
	candidate, ok := orders[candidateID]
	if !ok || candidate.Status != models.StatusActive {
		return nil, nil, errCandidateGone
	}

	buy, sell := incoming, candidate
	if incoming.Side == models.SideSell {
		buy, sell = candidate, incoming
	}

	wallets, err := s.DB.LockWallets(ctx, tx, []int{buy.ProfileID, sell.ProfileID})
	if err != nil {
		return nil, nil, err
	}
	buyerWallet, ok := wallets[buy.ProfileID]
	if !ok {
		return nil, nil, fmt.Errorf("wallet for profile %d not found", buy.ProfileID)
	}
	sellerWallet, ok := wallets[sell.ProfileID]
	if !ok {
		return nil, nil, fmt.Errorf("wallet for profile %d not found", sell.ProfileID)
	}

	st, err := Settle(buy, buyerWallet, sell, sellerWallet, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	if err := s.DB.CreateTransaction(ctx, tx, st.Transaction); err != nil {
		return nil, nil, err
	}
	if err := s.DB.MarkOrderExecuted(ctx, tx, st.BuyOrder); err != nil {
		return nil, nil, err
	}
	if err := s.DB.MarkOrderExecuted(ctx, tx, st.SellOrder); err != nil {
		return nil, nil, err
	}
	if err := s.DB.UpdateWalletBalances(ctx, tx, st.BuyerWallet); err != nil {
		return nil, nil, err
	}
	if err := s.DB.UpdateWalletBalances(ctx, tx, st.SellerWallet); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	executed := st.BuyOrder
	if incoming.ID == st.SellOrder.ID {
		executed = st.SellOrder
	}
	return &executed, &st.Transaction, nil
}

// CancelOrder unlocks an active order's reserved funds and deletes it.
// Only the owner may cancel, and only while the order is active: the
// order row is locked first, so a cancellation racing a settlement
// either wins (the matcher skips the vanished order) or observes the
// order executed and fails.
func (s *Service) CancelOrder(ctx context.Context, profileID, orderID int) error {
	tx, err := s.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := s.DB.GetOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if order.ProfileID != profileID {
		// Hide other profiles' orders rather than confirm they exist.
		return ErrNotFound
	}
	if order.Status != models.StatusActive {
		return ErrForbidden
	}

	asset, amount := Reservation(order.Side, order.Price, order.Quantity)
	if err := s.DB.UnlockFunds(ctx, tx, order.ProfileID, asset, amount); err != nil {
		return err
	}
	if err := s.DB.DeleteOrder(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ProfileSummary is the wallet overview returned by the profile
// endpoint.
type ProfileSummary struct {
	Profile        models.Profile
	ActiveOrders   int
	ExecutedOrders int
	DollarBalance  decimal.Decimal
	BitcoinBalance decimal.Decimal
	BitcoinProfit  decimal.Decimal
}

// Summary computes a profile's wallet overview: order counts, total
// balances and bitcoin profit relative to the creation-time baseline.
func (s *Service) Summary(ctx context.Context, profileID int) (*ProfileSummary, error) {
	profile, err := s.DB.GetProfileByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	wallet, err := s.DB.GetWallet(ctx, profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	active, err := s.DB.CountOrders(ctx, profileID, models.StatusActive)
	if err != nil {
		return nil, err
	}
	executed, err := s.DB.CountOrders(ctx, profileID, models.StatusExecuted)
	if err != nil {
		return nil, err
	}

	return &ProfileSummary{
		Profile:        *profile,
		ActiveOrders:   active,
		ExecutedOrders: executed,
		DollarBalance:  wallet.TotalDollar(),
		BitcoinBalance: wallet.TotalBitcoin(),
		BitcoinProfit:  ProfitPercent(*wallet),
	}, nil
}
