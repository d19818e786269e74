// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/gamemarket/market-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Asset reference data ---

	// CreateAsset registers a tradable asset.
	CreateAsset(ctx context.Context, a *model.Asset) error

	// GetAsset retrieves an asset by id.
	GetAsset(ctx context.Context, id string) (*model.Asset, error)

	// ListAssets returns all registered assets.
	ListAssets(ctx context.Context) ([]model.Asset, error)

	// --- Orders ---

	// CreateOrder persists a new order.
	CreateOrder(ctx context.Context, o *model.Order) error

	// GetOrder retrieves an order by id.
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// UpdateOrder persists remaining quantity and status for an order.
	UpdateOrder(ctx context.Context, id string, remaining int64, status model.OrderStatus) error

	// OpenOrders returns all OPEN/PARTIALLY_FILLED orders, optionally
	// restricted to a single asset (assetID == "" means all assets).
	OpenOrders(ctx context.Context, assetID string) ([]model.Order, error)

	// --- Wallets ---

	// GetWallet retrieves a player's wallet. ErrNotFound if absent.
	GetWallet(ctx context.Context, playerID string) (*model.Wallet, error)

	// PutWallet upserts a wallet row.
	PutWallet(ctx context.Context, w *model.Wallet) error

	// --- Player assets ---

	// GetPlayerAsset retrieves one (player, asset) holding. ErrNotFound if absent.
	GetPlayerAsset(ctx context.Context, playerID, assetID string) (*model.PlayerAsset, error)

	// PutPlayerAsset upserts a holding row.
	PutPlayerAsset(ctx context.Context, pa *model.PlayerAsset) error

	// --- Immutable trade log ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// TradesByAsset returns all trades for an asset ordered by execution
	// time ascending.
	TradesByAsset(ctx context.Context, assetID string) ([]model.Trade, error)

	// TradesByPlayer returns all trades touching any order owned by the
	// player, ordered by execution time ascending.
	TradesByPlayer(ctx context.Context, playerID string) ([]model.Trade, error)

	// DailyMinPrices returns the minimum execution price per calendar day
	// for an asset, ascending by date.
	DailyMinPrices(ctx context.Context, assetID string) ([]model.DailyPrice, error)
}
