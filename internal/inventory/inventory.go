// Package inventory manages player-asset holdings: owned quantity and the
// reserved (pending-sale) portion earmarked by open SELL orders.
//
// Invariant after every operation: reserved ≤ quantity for each
// (player, asset) pair, and neither goes negative.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

var (
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

	// ErrInsufficientInventory is returned when a sale reservation
	// exceeds the player's unreserved holdings.
	ErrInsufficientInventory = errors.New("inventory: insufficient unreserved quantity")
)

// Inventory performs holding operations against the store. Callers
// serialize conflicting writes (the engine holds a per-asset lock).
type Inventory struct {
	store store.Store
}

// New creates an inventory over the given store.
func New(st store.Store) *Inventory {
	return &Inventory{store: st}
}

// Grant issues qty units of an asset to a player from an external source,
// creating the holding record if absent.
func (inv *Inventory) Grant(ctx context.Context, playerID, assetID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	pa, err := inv.store.GetPlayerAsset(ctx, playerID, assetID)
	if errors.Is(err, store.ErrNotFound) {
		pa = &model.PlayerAsset{PlayerID: playerID, AssetID: assetID}
	} else if err != nil {
		return fmt.Errorf("grant %s/%s: %w", playerID, assetID, err)
	}

	pa.Quantity += qty
	return inv.store.PutPlayerAsset(ctx, pa)
}

// ReserveForSale earmarks qty units for a pending sale. Fails with
// ErrInsufficientInventory when the unreserved quantity does not cover it.
func (inv *Inventory) ReserveForSale(ctx context.Context, playerID, assetID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	pa, err := inv.store.GetPlayerAsset(ctx, playerID, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInsufficientInventory
	}
	if err != nil {
		return fmt.Errorf("reserve %s/%s: %w", playerID, assetID, err)
	}

	if pa.Quantity-pa.Reserved < qty {
		return ErrInsufficientInventory
	}
	pa.Reserved += qty
	return inv.store.PutPlayerAsset(ctx, pa)
}

// ReleaseReservation returns qty units from reserved to available,
// clamped at zero. Over-release is logged as drift, never an error.
func (inv *Inventory) ReleaseReservation(ctx context.Context, playerID, assetID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	pa, err := inv.store.GetPlayerAsset(ctx, playerID, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil // nothing reserved, nothing to release
	}
	if err != nil {
		return fmt.Errorf("release %s/%s: %w", playerID, assetID, err)
	}

	newReserved := pa.Reserved - qty
	if newReserved < 0 {
		slog.Warn("reserved inventory drift clamped to zero",
			"player", playerID, "asset", assetID, "reserved", pa.Reserved, "release", qty)
		newReserved = 0
	}
	pa.Reserved = newReserved
	return inv.store.PutPlayerAsset(ctx, pa)
}

// Transfer moves qty units from seller to buyer. The seller's quantity and
// reservation both decrease by qty (clamped at zero); the buyer's holding
// is created with zero reserved if absent.
func (inv *Inventory) Transfer(ctx context.Context, fromPlayer, toPlayer, assetID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	seller, err := inv.store.GetPlayerAsset(ctx, fromPlayer, assetID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("transfer from player without holding record",
			"player", fromPlayer, "asset", assetID, "qty", qty)
		seller = nil
	} else if err != nil {
		return fmt.Errorf("transfer from %s/%s: %w", fromPlayer, assetID, err)
	}

	if seller != nil {
		seller.Quantity = max(0, seller.Quantity-qty)
		seller.Reserved = max(0, seller.Reserved-qty)
		if seller.Reserved > seller.Quantity {
			seller.Reserved = seller.Quantity
		}
		if err := inv.store.PutPlayerAsset(ctx, seller); err != nil {
			return err
		}
	}

	buyer, err := inv.store.GetPlayerAsset(ctx, toPlayer, assetID)
	if errors.Is(err, store.ErrNotFound) {
		buyer = &model.PlayerAsset{PlayerID: toPlayer, AssetID: assetID}
	} else if err != nil {
		return fmt.Errorf("transfer to %s/%s: %w", toPlayer, assetID, err)
	}

	buyer.Quantity += qty
	return inv.store.PutPlayerAsset(ctx, buyer)
}

// Holding returns the player's holding, or a zero-valued one if absent.
func (inv *Inventory) Holding(ctx context.Context, playerID, assetID string) (*model.PlayerAsset, error) {
	pa, err := inv.store.GetPlayerAsset(ctx, playerID, assetID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.PlayerAsset{PlayerID: playerID, AssetID: assetID}, nil
	}
	return pa, err
}
