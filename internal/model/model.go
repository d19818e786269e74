// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order.
// FILLED and CANCELLED are terminal.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Order is a resting or incoming limit order for one asset.
// Remaining > 0 ⇔ status ∈ {OPEN, PARTIALLY_FILLED}; Remaining = 0 ⇔ FILLED.
// Seq is a process-monotonic counter assigned at creation and used as the
// time tie-break so that orders created in the same wall-clock instant
// still have a total priority order.
type Order struct {
	ID        string          `json:"id" db:"id"`
	PlayerID  string          `json:"player_id" db:"player_id"`
	AssetID   string          `json:"asset_id" db:"asset_id"`
	Side      Side            `json:"side" db:"side"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int64           `json:"quantity" db:"quantity"`   // original size
	Remaining int64           `json:"remaining" db:"remaining"` // unfilled size
	Status    OrderStatus     `json:"status" db:"status"`
	Seq       int64           `json:"seq" db:"seq"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Wallet holds a player's funds. Balance is available; Reserved is earmarked.
// Both are always ≥ 0. Created lazily on first credit/recharge.
type Wallet struct {
	PlayerID string          `json:"player_id" db:"player_id"`
	Balance  decimal.Decimal `json:"balance" db:"balance"`
	Reserved decimal.Decimal `json:"reserved" db:"reserved"`
}

// PlayerAsset is a player's holding of one asset. Reserved counts units
// earmarked by open SELL orders and never exceeds Quantity.
type PlayerAsset struct {
	PlayerID string `json:"player_id" db:"player_id"`
	AssetID  string `json:"asset_id" db:"asset_id"`
	Quantity int64  `json:"quantity" db:"quantity"`
	Reserved int64  `json:"reserved" db:"reserved"`
}

// Trade is an immutable record of one execution. Price is always the
// resting (maker) order's limit price. Never modified or deleted.
type Trade struct {
	ID          string          `json:"id" db:"id"`
	AssetID     string          `json:"asset_id" db:"asset_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	BuyOrderID  string          `json:"buy_order_id" db:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id" db:"sell_order_id"`
	ExecutedAt  time.Time       `json:"executed_at" db:"executed_at"`
}

// Asset is static reference data for a tradable item.
type Asset struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Category string `json:"category" db:"category"`
}

// DailyPrice is one point of the daily minimum-price aggregate used for
// price charts.
type DailyPrice struct {
	Date     string          `json:"date"` // YYYY-MM-DD
	MinPrice decimal.Decimal `json:"min_price"`
}
