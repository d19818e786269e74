// Package book maintains the working set of open orders as a per-asset,
// per-side priority index in front of the store's orders table. The index
// replaces the original scan-all-then-filter retrieval: candidates come
// back already in matching priority order and price-incompatible tails are
// never visited.
//
// Priority is price first (ascending for asks, descending for bids), then
// creation sequence ascending, then order id ascending so equal-time
// entries still have a total order.
package book

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

// entry is the lightweight index record for one open order. The store row
// stays authoritative for remaining quantity and status; the index only
// fixes retrieval order.
type entry struct {
	orderID  string
	playerID string
	price    decimal.Decimal
	seq      int64
}

type sideKey struct {
	assetID string
	side    model.Side
}

// Book is the open-order index over a store.
type Book struct {
	store store.Store

	mu    sync.RWMutex
	index map[sideKey][]entry // sorted best-first per (asset, side)
}

// New creates an empty book over the given store. Call Load to rebuild the
// index from previously persisted open orders.
func New(st store.Store) *Book {
	return &Book{
		store: st,
		index: make(map[sideKey][]entry),
	}
}

// Load rebuilds the index from all open orders in the store and returns
// the highest creation sequence seen, so the caller can continue the
// counter after a restart.
func (b *Book) Load(ctx context.Context) (int64, error) {
	orders, err := b.store.OpenOrders(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("load open orders: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.index = make(map[sideKey][]entry)
	var maxSeq int64
	for _, o := range orders {
		b.add(o)
		if o.Seq > maxSeq {
			maxSeq = o.Seq
		}
	}
	return maxSeq, nil
}

// Insert persists a new order and adds it to the index.
func (b *Book) Insert(ctx context.Context, o *model.Order) error {
	if err := b.store.CreateOrder(ctx, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	b.mu.Lock()
	b.add(*o)
	b.mu.Unlock()
	return nil
}

// add inserts into the sorted slice at its priority position. Caller holds mu.
func (b *Book) add(o model.Order) {
	key := sideKey{assetID: o.AssetID, side: o.Side}
	e := entry{orderID: o.ID, playerID: o.PlayerID, price: o.Price, seq: o.Seq}

	s := b.index[key]
	pos := sort.Search(len(s), func(i int) bool {
		return before(e, s[i], o.Side)
	})
	s = append(s, entry{})
	copy(s[pos+1:], s[pos:])
	s[pos] = e
	b.index[key] = s
}

// before reports whether a has strictly higher matching priority than c on
// the given side. Asks match cheapest first, bids most generous first;
// ties break on creation sequence then order id.
func before(a, c entry, side model.Side) bool {
	cmp := a.price.Cmp(c.price)
	if cmp != 0 {
		if side == model.SideSell {
			return cmp < 0
		}
		return cmp > 0
	}
	if a.seq != c.seq {
		return a.seq < c.seq
	}
	return a.orderID < c.orderID
}

// remove drops an order from the index. Caller holds mu.
func (b *Book) remove(key sideKey, orderID string) {
	s := b.index[key]
	for i, e := range s {
		if e.orderID == orderID {
			b.index[key] = append(s[:i], s[i+1:]...)
			return
		}
	}
}

// OpenCandidates returns the open counter-orders a taker order can match,
// in priority order: opposite side of the taker, price-compatible with the
// taker's limit, excluding the taker's own orders so a player never trades
// with themself. Rows are fetched fresh from the store; entries whose row
// turned terminal or drained are dropped from the index and skipped.
func (b *Book) OpenCandidates(ctx context.Context, assetID string, takerSide model.Side, limit decimal.Decimal, excludePlayer, excludeOrderID string) ([]model.Order, error) {
	makerSide := takerSide.Opposite()
	key := sideKey{assetID: assetID, side: makerSide}

	b.mu.RLock()
	entries := make([]entry, len(b.index[key]))
	copy(entries, b.index[key])
	b.mu.RUnlock()

	var candidates []model.Order
	var stale []string

	for _, e := range entries {
		if !compatible(e.price, limit, takerSide) {
			break // sorted best-first: the rest are incompatible too
		}
		if e.playerID == excludePlayer || e.orderID == excludeOrderID {
			continue
		}

		o, err := b.store.GetOrder(ctx, e.orderID)
		if errors.Is(err, store.ErrNotFound) {
			stale = append(stale, e.orderID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", e.orderID, err)
		}
		if o.Status.Terminal() || o.Remaining <= 0 {
			stale = append(stale, e.orderID)
			continue
		}
		candidates = append(candidates, *o)
	}

	if len(stale) > 0 {
		b.mu.Lock()
		for _, id := range stale {
			b.remove(key, id)
		}
		b.mu.Unlock()
	}
	return candidates, nil
}

// compatible reports whether a maker price crosses the taker's limit.
func compatible(makerPrice, takerLimit decimal.Decimal, takerSide model.Side) bool {
	if takerSide == model.SideBuy {
		return makerPrice.LessThanOrEqual(takerLimit) // ask ≤ buy limit
	}
	return makerPrice.GreaterThanOrEqual(takerLimit) // bid ≥ sell limit
}

// UpdateFill persists an order's new remaining quantity with its derived
// status and drops filled orders from the index. Returns the new status.
func (b *Book) UpdateFill(ctx context.Context, o *model.Order, newRemaining int64) (model.OrderStatus, error) {
	status := deriveStatus(o.Quantity, newRemaining)
	if err := b.store.UpdateOrder(ctx, o.ID, newRemaining, status); err != nil {
		return "", fmt.Errorf("update fill %s: %w", o.ID, err)
	}

	if status == model.StatusFilled {
		b.mu.Lock()
		b.remove(sideKey{assetID: o.AssetID, side: o.Side}, o.ID)
		b.mu.Unlock()
	}
	return status, nil
}

// deriveStatus maps fill progress to order status.
func deriveStatus(original, remaining int64) model.OrderStatus {
	switch {
	case remaining <= 0:
		return model.StatusFilled
	case remaining < original:
		return model.StatusPartiallyFilled
	default:
		return model.StatusOpen
	}
}

// MarkCancelled sets the order terminal and drops it from the index. The
// remaining quantity is preserved on the row for audit.
func (b *Book) MarkCancelled(ctx context.Context, o *model.Order) error {
	if err := b.store.UpdateOrder(ctx, o.ID, o.Remaining, model.StatusCancelled); err != nil {
		return fmt.Errorf("mark cancelled %s: %w", o.ID, err)
	}

	b.mu.Lock()
	b.remove(sideKey{assetID: o.AssetID, side: o.Side}, o.ID)
	b.mu.Unlock()
	return nil
}

// Depth returns the number of indexed orders for one side of an asset.
func (b *Book) Depth(assetID string, side model.Side) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index[sideKey{assetID: assetID, side: side}])
}
