package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gamemarket/market-engine/internal/inventory"
	"github.com/gamemarket/market-engine/internal/store"
)

func newInventory() *inventory.Inventory {
	return inventory.New(store.NewMemoryStore())
}

func TestGrant_CreatesHoldingLazily(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	if err := inv.Grant(ctx, "p1", "sword", 5); err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	pa, err := inv.Holding(ctx, "p1", "sword")
	if err != nil {
		t.Fatalf("holding: %v", err)
	}
	if pa.Quantity != 5 || pa.Reserved != 0 {
		t.Errorf("expected quantity=5 reserved=0, got quantity=%d reserved=%d", pa.Quantity, pa.Reserved)
	}
}

func TestGrant_InvalidQuantity(t *testing.T) {
	inv := newInventory()

	for _, qty := range []int64{0, -3} {
		if err := inv.Grant(context.Background(), "p1", "sword", qty); !errors.Is(err, inventory.ErrInvalidQuantity) {
			t.Errorf("grant %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestReserveForSale(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "p1", "sword", 10)

	if err := inv.ReserveForSale(ctx, "p1", "sword", 6); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	pa, _ := inv.Holding(ctx, "p1", "sword")
	if pa.Quantity != 10 || pa.Reserved != 6 {
		t.Errorf("expected quantity=10 reserved=6, got quantity=%d reserved=%d", pa.Quantity, pa.Reserved)
	}

	// Only 4 unreserved remain.
	if err := inv.ReserveForSale(ctx, "p1", "sword", 5); !errors.Is(err, inventory.ErrInsufficientInventory) {
		t.Errorf("expected ErrInsufficientInventory, got %v", err)
	}
	if err := inv.ReserveForSale(ctx, "p1", "sword", 4); err != nil {
		t.Errorf("reserving exactly the unreserved quantity should succeed: %v", err)
	}
}

func TestReserveForSale_NoHolding(t *testing.T) {
	inv := newInventory()

	if err := inv.ReserveForSale(context.Background(), "ghost", "sword", 1); !errors.Is(err, inventory.ErrInsufficientInventory) {
		t.Errorf("expected ErrInsufficientInventory for missing holding, got %v", err)
	}
}

func TestReleaseReservation(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "p1", "sword", 10)
	inv.ReserveForSale(ctx, "p1", "sword", 7)

	if err := inv.ReleaseReservation(ctx, "p1", "sword", 3); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	pa, _ := inv.Holding(ctx, "p1", "sword")
	if pa.Quantity != 10 || pa.Reserved != 4 {
		t.Errorf("expected quantity=10 reserved=4, got quantity=%d reserved=%d", pa.Quantity, pa.Reserved)
	}
}

func TestReleaseReservation_ClampsAtZero(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "p1", "sword", 10)
	inv.ReserveForSale(ctx, "p1", "sword", 2)

	if err := inv.ReleaseReservation(ctx, "p1", "sword", 5); err != nil {
		t.Fatalf("over-release should not fail: %v", err)
	}
	pa, _ := inv.Holding(ctx, "p1", "sword")
	if pa.Reserved != 0 {
		t.Errorf("expected reserved clamped to zero, got %d", pa.Reserved)
	}
}

func TestReleaseReservation_MissingHoldingIsNoop(t *testing.T) {
	inv := newInventory()

	if err := inv.ReleaseReservation(context.Background(), "ghost", "sword", 1); err != nil {
		t.Errorf("release on missing holding should be a no-op, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "seller", "sword", 10)
	inv.ReserveForSale(ctx, "seller", "sword", 10)

	if err := inv.Transfer(ctx, "seller", "buyer", "sword", 4); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	seller, _ := inv.Holding(ctx, "seller", "sword")
	if seller.Quantity != 6 || seller.Reserved != 6 {
		t.Errorf("seller: expected quantity=6 reserved=6, got quantity=%d reserved=%d", seller.Quantity, seller.Reserved)
	}
	buyer, _ := inv.Holding(ctx, "buyer", "sword")
	if buyer.Quantity != 4 || buyer.Reserved != 0 {
		t.Errorf("buyer: expected quantity=4 reserved=0, got quantity=%d reserved=%d", buyer.Quantity, buyer.Reserved)
	}
}

func TestTransfer_CreatesBuyerHolding(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "seller", "shield", 3)
	inv.ReserveForSale(ctx, "seller", "shield", 3)

	if err := inv.Transfer(ctx, "seller", "newcomer", "shield", 3); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	buyer, _ := inv.Holding(ctx, "newcomer", "shield")
	if buyer.Quantity != 3 {
		t.Errorf("expected buyer quantity 3, got %d", buyer.Quantity)
	}
}

func TestTransfer_ConservesTotalQuantity(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "a", "gem", 20)
	inv.ReserveForSale(ctx, "a", "gem", 20)

	total := func() int64 {
		a, _ := inv.Holding(ctx, "a", "gem")
		b, _ := inv.Holding(ctx, "b", "gem")
		return a.Quantity + b.Quantity
	}
	before := total()

	for i := 0; i < 4; i++ {
		if err := inv.Transfer(ctx, "a", "b", "gem", 5); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
	}
	if total() != before {
		t.Errorf("total quantity changed: before=%d after=%d", before, total())
	}
}

func TestTransfer_InvariantReservedNeverExceedsQuantity(t *testing.T) {
	inv := newInventory()
	ctx := context.Background()

	inv.Grant(ctx, "p1", "gem", 10)
	inv.ReserveForSale(ctx, "p1", "gem", 4)

	// Transfer more than is reserved; the clamp keeps the invariant.
	if err := inv.Transfer(ctx, "p1", "p2", "gem", 7); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	pa, _ := inv.Holding(ctx, "p1", "gem")
	if pa.Reserved > pa.Quantity {
		t.Errorf("reserved %d exceeds quantity %d", pa.Reserved, pa.Quantity)
	}
	if pa.Quantity < 0 || pa.Reserved < 0 {
		t.Errorf("negative holding: quantity=%d reserved=%d", pa.Quantity, pa.Reserved)
	}
}
