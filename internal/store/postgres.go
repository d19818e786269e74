package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (id, name, category) VALUES ($1, $2, $3)`,
		a.ID, a.Name, a.Category,
	)
	return err
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &a, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Category); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (id, player_id, asset_id, side, price, quantity, remaining, status, seq, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10)`,
		o.ID, o.PlayerID, o.AssetID, o.Side,
		o.Price.String(), o.Quantity, o.Remaining, o.Status, o.Seq, o.CreatedAt,
	)
	return err
}

const orderColumns = `id, player_id, asset_id, side, price::TEXT, quantity, remaining, status, seq, created_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var price string
	if err := row.Scan(&o.ID, &o.PlayerID, &o.AssetID, &o.Side,
		&price, &o.Quantity, &o.Remaining, &o.Status, &o.Seq, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Price, _ = decimal.NewFromString(price)
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, id string, remaining int64, status model.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET remaining = $2, status = $3 WHERE id = $1`,
		id, remaining, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) OpenOrders(ctx context.Context, assetID string) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE status IN ('OPEN', 'PARTIALLY_FILLED')`
	args := []any{}
	if assetID != "" {
		query += ` AND asset_id = $1`
		args = append(args, assetID)
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) GetWallet(ctx context.Context, playerID string) (*model.Wallet, error) {
	var w model.Wallet
	var balance, reserved string

	err := s.pool.QueryRow(ctx,
		`SELECT player_id, balance::TEXT, reserved::TEXT FROM wallets WHERE player_id = $1`,
		playerID).
		Scan(&w.PlayerID, &balance, &reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", playerID, err)
	}

	w.Balance, _ = decimal.NewFromString(balance)
	w.Reserved, _ = decimal.NewFromString(reserved)
	return &w, nil
}

func (s *PostgresStore) PutWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (player_id, balance, reserved)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (player_id) DO UPDATE
		 SET balance = EXCLUDED.balance, reserved = EXCLUDED.reserved`,
		w.PlayerID, w.Balance.String(), w.Reserved.String(),
	)
	return err
}

func (s *PostgresStore) GetPlayerAsset(ctx context.Context, playerID, assetID string) (*model.PlayerAsset, error) {
	var pa model.PlayerAsset
	err := s.pool.QueryRow(ctx,
		`SELECT player_id, asset_id, quantity, reserved
		 FROM player_assets WHERE player_id = $1 AND asset_id = $2`,
		playerID, assetID).
		Scan(&pa.PlayerID, &pa.AssetID, &pa.Quantity, &pa.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get player asset %s/%s: %w", playerID, assetID, err)
	}
	return &pa, nil
}

func (s *PostgresStore) PutPlayerAsset(ctx context.Context, pa *model.PlayerAsset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO player_assets (player_id, asset_id, quantity, reserved)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (player_id, asset_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, reserved = EXCLUDED.reserved`,
		pa.PlayerID, pa.AssetID, pa.Quantity, pa.Reserved,
	)
	return err
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, asset_id, price, quantity, buy_order_id, sell_order_id, executed_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7)`,
		t.ID, t.AssetID, t.Price.String(), t.Quantity,
		t.BuyOrderID, t.SellOrderID, t.ExecutedAt,
	)
	return err
}

func (s *PostgresStore) TradesByAsset(ctx context.Context, assetID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, price::TEXT, quantity, buy_order_id, sell_order_id, executed_at
		 FROM trades WHERE asset_id = $1 ORDER BY executed_at`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) TradesByPlayer(ctx context.Context, playerID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT t.id, t.asset_id, t.price::TEXT, t.quantity, t.buy_order_id, t.sell_order_id, t.executed_at
		 FROM trades t
		 WHERE t.buy_order_id IN (SELECT id FROM orders WHERE player_id = $1)
		    OR t.sell_order_id IN (SELECT id FROM orders WHERE player_id = $1)
		 ORDER BY t.executed_at`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) DailyMinPrices(ctx context.Context, assetID string) ([]model.DailyPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT TO_CHAR(executed_at::DATE, 'YYYY-MM-DD') AS trade_date, MIN(price)::TEXT AS min_price
		 FROM trades WHERE asset_id = $1
		 GROUP BY executed_at::DATE ORDER BY trade_date`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.DailyPrice
	for rows.Next() {
		var dp model.DailyPrice
		var price string
		if err := rows.Scan(&dp.Date, &price); err != nil {
			return nil, err
		}
		dp.MinPrice, _ = decimal.NewFromString(price)
		result = append(result, dp)
	}
	return result, rows.Err()
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var price string
		if err := rows.Scan(&t.ID, &t.AssetID, &price, &t.Quantity,
			&t.BuyOrderID, &t.SellOrderID, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Price, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
