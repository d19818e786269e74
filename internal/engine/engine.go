// Package engine implements the continuous double-auction matching core:
// order submission with immediate price-time matching, settlement across
// ledger and inventory, the append-only trade log, and cancellation.
//
// Matching is synchronous and driven entirely by submission; there is no
// background sweep. Submissions and cancellations for the same asset are
// serialized by a per-asset lock so two takers can never consume the same
// resting liquidity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/book"
	"github.com/gamemarket/market-engine/internal/inventory"
	"github.com/gamemarket/market-engine/internal/ledger"
	"github.com/gamemarket/market-engine/internal/metrics"
	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

var (
	// ErrInvalidPrice is returned when the limit price is not positive.
	ErrInvalidPrice = errors.New("engine: price must be positive")

	// ErrInvalidQuantity is returned when the quantity is not positive.
	ErrInvalidQuantity = errors.New("engine: quantity must be positive")

	// ErrInvalidSide is returned when the side is neither BUY nor SELL.
	ErrInvalidSide = errors.New("engine: side must be BUY or SELL")

	// ErrAssetNotFound is returned when the asset id is unknown.
	ErrAssetNotFound = errors.New("engine: asset not found")

	// ErrOrderNotFound is returned when the order id is unknown.
	ErrOrderNotFound = errors.New("engine: order not found")

	// ErrNotOwner is returned when a cancel requester does not own the order.
	ErrNotOwner = errors.New("engine: requester is not the order owner")

	// ErrNotCancellable is returned when the order is already terminal.
	ErrNotCancellable = errors.New("engine: order is not cancellable")
)

// Engine wires the order book, ledger, and inventory into the matching
// loop. Safe for concurrent use.
type Engine struct {
	store     store.Store
	book      *book.Book
	ledger    *ledger.Ledger
	inventory *inventory.Inventory

	seq atomic.Int64 // creation sequence, the time tie-break

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-asset serialization
}

// New creates an engine over the given store. The book index is rebuilt
// from persisted open orders so a restart resumes with the same book.
func New(ctx context.Context, st store.Store) (*Engine, error) {
	b := book.New(st)
	maxSeq, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:     st,
		book:      b,
		ledger:    ledger.New(st),
		inventory: inventory.New(st),
		locks:     make(map[string]*sync.Mutex),
	}
	e.seq.Store(maxSeq)
	return e, nil
}

// Ledger exposes the wallet component for the HTTP surface.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Inventory exposes the holdings component for the HTTP surface and seeding.
func (e *Engine) Inventory() *inventory.Inventory { return e.inventory }

// assetLock returns the mutex serializing all matching work for one asset.
func (e *Engine) assetLock(assetID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	mu, ok := e.locks[assetID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[assetID] = mu
	}
	return mu
}

// Submit validates and places a limit order, matches it immediately against
// the best-priced compatible resting orders, and returns the order in its
// final state together with the trades executed (possibly none).
//
// SELL orders reserve the sale quantity in inventory before becoming
// visible; an underfunded seller fails the whole submission with no order
// created. BUY orders reserve nothing — the buyer's funds are checked and
// debited per match, and a buyer who cannot pay for a given candidate is
// skipped, not failed.
func (e *Engine) Submit(ctx context.Context, playerID, assetID string, side model.Side, price decimal.Decimal, quantity int64) (*model.Order, []model.Trade, error) {
	if side != model.SideBuy && side != model.SideSell {
		return nil, nil, ErrInvalidSide
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, nil, ErrInvalidPrice
	}
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}
	if _, err := e.store.GetAsset(ctx, assetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrAssetNotFound
		}
		return nil, nil, fmt.Errorf("submit: %w", err)
	}

	mu := e.assetLock(assetID)
	mu.Lock()
	defer mu.Unlock()

	if side == model.SideSell {
		if err := e.inventory.ReserveForSale(ctx, playerID, assetID, quantity); err != nil {
			return nil, nil, err
		}
	}

	order := &model.Order{
		ID:        uuid.New().String(),
		PlayerID:  playerID,
		AssetID:   assetID,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Remaining: quantity,
		Status:    model.StatusOpen,
		Seq:       e.seq.Add(1),
		CreatedAt: time.Now().UTC(),
	}

	if err := e.book.Insert(ctx, order); err != nil {
		// Undo the reservation so a failed persist leaves no earmark behind.
		if side == model.SideSell {
			_ = e.inventory.ReleaseReservation(ctx, playerID, assetID, quantity)
		}
		return nil, nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(side)).Inc()
	start := time.Now()

	trades, err := e.match(ctx, order)
	if err != nil {
		// Trades executed before the failure are already settled and
		// logged; surface them alongside the error.
		return order, trades, err
	}

	metrics.MatchLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("order placed",
		"order_id", order.ID,
		"player", playerID,
		"asset", assetID,
		"side", side,
		"price", price.String(),
		"quantity", quantity,
		"status", order.Status,
		"trades", len(trades),
	)
	return order, trades, nil
}

// match runs the taker loop. Caller holds the asset lock.
func (e *Engine) match(ctx context.Context, order *model.Order) ([]model.Trade, error) {
	candidates, err := e.book.OpenCandidates(ctx, order.AssetID, order.Side, order.Price, order.PlayerID, order.ID)
	if err != nil {
		return nil, err
	}

	var trades []model.Trade
	remaining := order.Remaining

	for _, cand := range candidates {
		if remaining <= 0 {
			break
		}
		if cand.Remaining <= 0 {
			continue // stale, skip defensively
		}

		tradeQty := min(remaining, cand.Remaining)
		tradePrice := cand.Price // taker executes at the resting order's price
		total := tradePrice.Mul(decimal.NewFromInt(tradeQty))

		var buyerID, sellerID, buyOrderID, sellOrderID string
		if order.Side == model.SideBuy {
			buyerID, sellerID = order.PlayerID, cand.PlayerID
			buyOrderID, sellOrderID = order.ID, cand.ID
		} else {
			buyerID, sellerID = cand.PlayerID, order.PlayerID
			buyOrderID, sellOrderID = cand.ID, order.ID
		}

		ok, err := e.ledger.HasSufficientFunds(ctx, buyerID, total)
		if err != nil {
			e.persistTaker(ctx, order, remaining)
			return trades, fmt.Errorf("funds check: %w", err)
		}
		if !ok {
			continue // underfunded buyer: skip this candidate, keep matching
		}

		// Settlement. The debit re-validates the balance so the check
		// above can never act on a stale read; a shortfall surfacing
		// here skips the candidate exactly like the pre-check.
		if err := e.ledger.Debit(ctx, buyerID, total); err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				continue
			}
			e.persistTaker(ctx, order, remaining)
			return trades, fmt.Errorf("settle debit: %w", err)
		}
		if err := e.ledger.Credit(ctx, sellerID, total); err != nil {
			// Refund so funds are never left half-moved.
			if rerr := e.ledger.Credit(ctx, buyerID, total); rerr != nil {
				slog.Error("settlement refund failed",
					"buyer", buyerID, "amount", total.String(), "err", rerr)
			}
			e.persistTaker(ctx, order, remaining)
			return trades, fmt.Errorf("settle credit: %w", err)
		}

		if err := e.inventory.Transfer(ctx, sellerID, buyerID, order.AssetID, tradeQty); err != nil {
			e.persistTaker(ctx, order, remaining)
			return trades, fmt.Errorf("settle transfer: %w", err)
		}

		// Funds and items have both moved: the fill is irreversible, so
		// count it now. A fault below must still leave the taker's row
		// stating no more liquidity than the seller actually holds.
		remaining -= tradeQty

		trade := model.Trade{
			ID:          uuid.New().String(),
			AssetID:     order.AssetID,
			Price:       tradePrice,
			Quantity:    tradeQty,
			BuyOrderID:  buyOrderID,
			SellOrderID: sellOrderID,
			ExecutedAt:  time.Now().UTC(),
		}
		if err := e.store.InsertTrade(ctx, &trade); err != nil {
			e.persistTaker(ctx, order, remaining)
			return trades, fmt.Errorf("trade log append: %w", err)
		}
		trades = append(trades, trade)

		if _, err := e.book.UpdateFill(ctx, &cand, cand.Remaining-tradeQty); err != nil {
			e.persistTaker(ctx, order, remaining)
			return trades, err
		}

		metrics.TradesTotal.Inc()
		metrics.TradeVolume.WithLabelValues(order.AssetID).Add(float64(tradeQty))

		slog.Info("trade executed",
			"trade_id", trade.ID,
			"asset", trade.AssetID,
			"price", trade.Price.String(),
			"quantity", trade.Quantity,
			"buy_order", buyOrderID,
			"sell_order", sellOrderID,
		)
	}

	status, err := e.book.UpdateFill(ctx, order, remaining)
	if err != nil {
		return trades, err
	}
	order.Remaining = remaining
	order.Status = status
	return trades, nil
}

// persistTaker records the taker's fill progress when the matching loop
// aborts mid-settlement. Best effort: once a fill has settled, the taker's
// store row must never overstate its remaining liquidity, or a later match
// against that row could consume units the owner no longer holds.
func (e *Engine) persistTaker(ctx context.Context, order *model.Order, remaining int64) {
	status, err := e.book.UpdateFill(ctx, order, remaining)
	if err != nil {
		slog.Error("failed to persist taker fill progress",
			"order_id", order.ID, "remaining", remaining, "err", err)
		return
	}
	order.Remaining = remaining
	order.Status = status
}

// Cancel reverses the reservation side-effects of an open order and marks
// it CANCELLED. Only the owner may cancel, and only while the order is
// OPEN or PARTIALLY_FILLED.
func (e *Engine) Cancel(ctx context.Context, orderID, requesterID string) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if order.PlayerID != requesterID {
		return ErrNotOwner
	}

	mu := e.assetLock(order.AssetID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a fill may have raced the checks above.
	order, err = e.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w (status=%s)", ErrNotCancellable, order.Status)
	}

	// SELL orders release their remaining earmark; BUY orders reserved
	// nothing under the direct-debit policy.
	if order.Side == model.SideSell && order.Remaining > 0 {
		if err := e.inventory.ReleaseReservation(ctx, order.PlayerID, order.AssetID, order.Remaining); err != nil {
			return err
		}
	}

	if err := e.book.MarkCancelled(ctx, order); err != nil {
		return err
	}

	metrics.CancellationsTotal.Inc()
	slog.Info("order cancelled",
		"order_id", orderID,
		"player", requesterID,
		"asset", order.AssetID,
		"released", order.Remaining,
	)
	return nil
}

// OpenOrders returns the current open working set, optionally for one asset.
func (e *Engine) OpenOrders(ctx context.Context, assetID string) ([]model.Order, error) {
	return e.store.OpenOrders(ctx, assetID)
}
