package db

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"bitexchange/internal/models"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool with the shopspring
// decimal codec registered on every connection.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// CreateProfile inserts a new profile together with its wallet. The
// wallet starts with the given bitcoin balance, which is also recorded
// as the profit baseline and must be positive.
func (db *DB) CreateProfile(ctx context.Context, username, passwordHash string, bitcoinBaseline decimal.Decimal) (*models.Profile, error) {
	if bitcoinBaseline.Sign() <= 0 {
		return nil, fmt.Errorf("bitcoin baseline must be positive, got %s", bitcoinBaseline)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	profile := &models.Profile{}
	err = tx.QueryRow(ctx,
		"INSERT INTO profiles (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&profile.ID, &profile.Username, &profile.PasswordHash, &profile.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO wallets (profile_id, available_bitcoin, bitcoin_baseline) VALUES ($1, $2, $2)",
		profile.ID, bitcoinBaseline)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return profile, nil
}

// GetProfileByUsername retrieves a profile by username
func (db *DB) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM profiles WHERE username = $1",
		username).Scan(&profile.ID, &profile.Username, &profile.PasswordHash, &profile.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// GetProfileByID retrieves a profile by id
func (db *DB) GetProfileByID(ctx context.Context, id int) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM profiles WHERE id = $1",
		id).Scan(&profile.ID, &profile.Username, &profile.PasswordHash, &profile.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

const walletColumns = "profile_id, available_dollar, locked_dollar, available_bitcoin, locked_bitcoin, bitcoin_baseline"

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	w := &models.Wallet{}
	err := row.Scan(&w.ProfileID, &w.AvailableDollar, &w.LockedDollar, &w.AvailableBitcoin, &w.LockedBitcoin, &w.BitcoinBaseline)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWallet retrieves a profile's wallet
func (db *DB) GetWallet(ctx context.Context, profileID int) (*models.Wallet, error) {
	w, err := scanWallet(db.Pool.QueryRow(ctx,
		"SELECT "+walletColumns+" FROM wallets WHERE profile_id = $1", profileID))
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// LockWallets locks the wallet rows of the given profiles for the
// duration of the transaction. Rows are always acquired in ascending
// profile id order so two concurrent settlements cannot deadlock.
func (db *DB) LockWallets(ctx context.Context, tx pgx.Tx, profileIDs []int) (map[int]models.Wallet, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+walletColumns+" FROM wallets WHERE profile_id = ANY($1) ORDER BY profile_id FOR UPDATE",
		profileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallets: %w", err)
	}
	defer rows.Close()

	wallets := make(map[int]models.Wallet, len(profileIDs))
	for rows.Next() {
		w := models.Wallet{}
		if err := rows.Scan(&w.ProfileID, &w.AvailableDollar, &w.LockedDollar, &w.AvailableBitcoin, &w.LockedBitcoin, &w.BitcoinBaseline); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets[w.ProfileID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock wallets: %w", err)
	}
	return wallets, nil
}

func balanceColumns(asset models.Asset) (available, locked string, err error) {
	switch asset {
	case models.AssetDollar:
		return "available_dollar", "locked_dollar", nil
	case models.AssetBitcoin:
		return "available_bitcoin", "locked_bitcoin", nil
	default:
		return "", "", fmt.Errorf("unknown asset %q", asset)
	}
}

// LockFunds atomically moves amount from the wallet's available balance
// to its locked balance. Returns false with a nil error when the
// available balance is insufficient (or the wallet does not exist); the
// wallet is untouched in that case.
func (db *DB) LockFunds(ctx context.Context, tx pgx.Tx, profileID int, asset models.Asset, amount decimal.Decimal) (bool, error) {
	available, locked, err := balanceColumns(asset)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx,
		fmt.Sprintf("UPDATE wallets SET %[1]s = %[1]s - $1, %[2]s = %[2]s + $1 WHERE profile_id = $2 AND %[1]s >= $1",
			available, locked),
		amount, profileID)
	if err != nil {
		return false, fmt.Errorf("failed to lock funds: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UnlockFunds atomically moves amount from the wallet's locked balance
// back to its available balance. The locked balance must cover the
// amount; a shortfall means the books are corrupt and is returned as an
// error so the enclosing transaction aborts.
func (db *DB) UnlockFunds(ctx context.Context, tx pgx.Tx, profileID int, asset models.Asset, amount decimal.Decimal) error {
	available, locked, err := balanceColumns(asset)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		fmt.Sprintf("UPDATE wallets SET %[1]s = %[1]s + $1, %[2]s = %[2]s - $1 WHERE profile_id = $2 AND %[2]s >= $1",
			available, locked),
		amount, profileID)
	if err != nil {
		return fmt.Errorf("failed to unlock funds: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unlock of %s %s exceeds locked balance for profile %d", amount, asset, profileID)
	}
	return nil
}

// UpdateWalletBalances writes all four balance fields of a wallet. The
// caller holds the row lock via LockWallets.
func (db *DB) UpdateWalletBalances(ctx context.Context, tx pgx.Tx, w models.Wallet) error {
	tag, err := tx.Exec(ctx,
		"UPDATE wallets SET available_dollar = $1, locked_dollar = $2, available_bitcoin = $3, locked_bitcoin = $4 WHERE profile_id = $5",
		w.AvailableDollar, w.LockedDollar, w.AvailableBitcoin, w.LockedBitcoin, w.ProfileID)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("wallet for profile %d not found", w.ProfileID)
	}
	return nil
}

const orderColumns = "id, profile_id, side, price, quantity, status, created_at, executed_at, transaction_id"

func scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.ProfileID, &o.Side, &o.Price, &o.Quantity, &o.Status, &o.CreatedAt, &o.ExecutedAt, &o.TransactionID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		o := models.Order{}
		if err := rows.Scan(&o.ID, &o.ProfileID, &o.Side, &o.Price, &o.Quantity, &o.Status, &o.CreatedAt, &o.ExecutedAt, &o.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrder inserts a new active order
func (db *DB) CreateOrder(ctx context.Context, tx pgx.Tx, order *models.Order) (*models.Order, error) {
	if order.Side != models.SideBuy && order.Side != models.SideSell {
		return nil, fmt.Errorf("side must be 'buy' or 'sell'")
	}
	if order.Price.Sign() <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if order.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	created, err := scanOrder(tx.QueryRow(ctx,
		"INSERT INTO orders (profile_id, side, price, quantity, status) VALUES ($1, $2, $3, $4, $5) RETURNING "+orderColumns,
		order.ProfileID, order.Side, order.Price, order.Quantity, models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrder retrieves an order by id
func (db *DB) GetOrder(ctx context.Context, orderID int) (*models.Order, error) {
	o, err := scanOrder(db.Pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// GetOrderForUpdate retrieves an order and locks its row for the
// duration of the transaction.
func (db *DB) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, orderID int) (*models.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID))
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// LockOrders locks the given order rows for the duration of the
// transaction, acquiring them in ascending id order. Orders deleted by
// a concurrent cancellation are simply absent from the result.
func (db *DB) LockOrders(ctx context.Context, tx pgx.Tx, orderIDs []int) (map[int]models.Order, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ANY($1) ORDER BY id FOR UPDATE", orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to lock orders: %w", err)
	}
	byID := make(map[int]models.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return byID, nil
}

// DeleteOrder removes an order row. Only cancellation deletes orders;
// executed orders are kept forever.
func (db *DB) DeleteOrder(ctx context.Context, tx pgx.Tx, orderID int) error {
	tag, err := tx.Exec(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("order %d not found", orderID)
	}
	return nil
}

// GetProfileOrders retrieves all orders of a profile, newest first
func (db *DB) GetProfileOrders(ctx context.Context, profileID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE profile_id = $1 ORDER BY created_at DESC, id DESC",
		profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile orders: %w", err)
	}
	return collectOrders(rows)
}

// GetLatestOrders retrieves the active orders of every other profile,
// newest first.
func (db *DB) GetLatestOrders(ctx context.Context, excludeProfileID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 AND profile_id <> $2 ORDER BY created_at DESC, id DESC",
		models.StatusActive, excludeProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest orders: %w", err)
	}
	return collectOrders(rows)
}

// GetActiveOrders retrieves every active order, newest first
func (db *DB) GetActiveOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 ORDER BY created_at DESC, id DESC",
		models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get active orders: %w", err)
	}
	return collectOrders(rows)
}

// FindCandidates retrieves the active counter-orders the incoming order
// could trade against: opposite side, another profile, exactly equal
// quantity, compatible price. Ordered oldest first so the matcher's
// first hit is the earliest created compatible order.
func (db *DB) FindCandidates(ctx context.Context, incoming models.Order) ([]models.Order, error) {
	priceCond := "price <= $4" // buy incoming: any sell quoting at or below our bid
	if incoming.Side == models.SideSell {
		priceCond = "price >= $4" // sell incoming: any buy bidding at or above our ask
	}
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = $1 AND side = $2 AND profile_id <> $3 AND quantity = $5 AND "+priceCond+
			" ORDER BY created_at ASC, id ASC",
		models.StatusActive, incoming.Side.Opposite(), incoming.ProfileID, incoming.Price, incoming.Quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	return collectOrders(rows)
}

// CountOrders counts a profile's orders in the given status
func (db *DB) CountOrders(ctx context.Context, profileID int, status models.OrderStatus) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM orders WHERE profile_id = $1 AND status = $2",
		profileID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// CreateTransaction inserts a settlement transaction record
func (db *DB) CreateTransaction(ctx context.Context, tx pgx.Tx, txn models.Transaction) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO transactions (id, executed_at) VALUES ($1, $2)",
		txn.ID, txn.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// MarkOrderExecuted writes an order's settled state: final price,
// executed status, execution time and transaction reference. The row
// must still be active; anything else means the order was settled or
// cancelled concurrently despite the row lock, so the transaction
// aborts.
func (db *DB) MarkOrderExecuted(ctx context.Context, tx pgx.Tx, o models.Order) error {
	tag, err := tx.Exec(ctx,
		"UPDATE orders SET price = $1, status = $2, executed_at = $3, transaction_id = $4 WHERE id = $5 AND status = $6",
		o.Price, models.StatusExecuted, o.ExecutedAt, o.TransactionID, o.ID, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to mark order executed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("order %d no longer active", o.ID)
	}
	return nil
}
