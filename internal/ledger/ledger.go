// Package ledger manages player wallets: available balance and reserved
// funds, with conservation guarantees. Buyer funds are not reserved at
// order placement — they are checked and debited at the moment each match
// executes, so the reservation lifecycle here exists for completeness but
// is unused by the canonical order flow.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

var (
	// ErrInvalidAmount is returned for non-positive monetary amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientFunds is returned when a debit or reservation
	// exceeds the available balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrWalletNotFound is returned when an operation requires an
	// existing wallet and none exists for the player.
	ErrWalletNotFound = errors.New("ledger: wallet not found")
)

// Ledger performs wallet operations against the store. It holds no state
// of its own; callers are responsible for serializing conflicting writes
// (the matching engine holds a per-asset lock around settlement).
type Ledger struct {
	store store.Store
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Credit increases a player's available balance, creating the wallet with
// zero reserved if absent.
func (l *Ledger) Credit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		w = &model.Wallet{PlayerID: playerID, Balance: decimal.Zero, Reserved: decimal.Zero}
	} else if err != nil {
		return fmt.Errorf("credit %s: %w", playerID, err)
	}

	w.Balance = w.Balance.Add(amount)
	return l.store.PutWallet(ctx, w)
}

// Debit decreases a player's available balance. Fails with
// ErrInsufficientFunds if the balance does not cover the amount.
func (l *Ledger) Debit(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return fmt.Errorf("debit %s: %w", playerID, err)
	}

	if w.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return l.store.PutWallet(ctx, w)
}

// Recharge tops up a wallet from an external source. Same lazy-creation
// semantics as Credit; returns the updated wallet for immediate feedback.
func (l *Ledger) Recharge(ctx context.Context, playerID string, amount decimal.Decimal) (*model.Wallet, error) {
	if err := l.Credit(ctx, playerID, amount); err != nil {
		return nil, err
	}
	return l.store.GetWallet(ctx, playerID)
}

// HasSufficientFunds reports whether the player's available balance covers
// the amount. A missing wallet counts as a zero balance.
func (l *Ledger) HasSufficientFunds(ctx context.Context, playerID string, amount decimal.Decimal) (bool, error) {
	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return w.Balance.GreaterThanOrEqual(amount), nil
}

// Wallet returns the player's wallet, or a zero-valued one if none exists.
func (l *Ledger) Wallet(ctx context.Context, playerID string) (*model.Wallet, error) {
	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Wallet{PlayerID: playerID, Balance: decimal.Zero, Reserved: decimal.Zero}, nil
	}
	return w, err
}

// --- Reservation lifecycle ---
//
// Moves funds balance→reserved and back. Kept for designs that reserve
// buyer funds at order-placement time; the canonical flow debits directly
// at match time and never calls these.

// ReserveFunds moves amount from balance to reserved.
func (l *Ledger) ReserveFunds(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}

	if w.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	w.Reserved = w.Reserved.Add(amount)
	return l.store.PutWallet(ctx, w)
}

// ReleaseReserved returns reserved funds to the balance. Reserved is
// clamped at zero: over-release is recoverable drift, not corruption, so
// it is logged rather than failed.
func (l *Ledger) ReleaseReserved(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}

	newReserved := w.Reserved.Sub(amount)
	if newReserved.IsNegative() {
		slog.Warn("reserved funds drift clamped to zero",
			"player", playerID, "reserved", w.Reserved.String(), "release", amount.String())
		newReserved = decimal.Zero
	}
	w.Reserved = newReserved
	w.Balance = w.Balance.Add(amount)
	return l.store.PutWallet(ctx, w)
}

// CommitReserved finalizes a reservation as spent. Funds already left the
// balance at reservation time, so only reserved decreases, clamped at zero.
func (l *Ledger) CommitReserved(ctx context.Context, playerID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	w, err := l.store.GetWallet(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}

	newReserved := w.Reserved.Sub(amount)
	if newReserved.IsNegative() {
		slog.Warn("reserved funds drift clamped to zero",
			"player", playerID, "reserved", w.Reserved.String(), "commit", amount.String())
		newReserved = decimal.Zero
	}
	w.Reserved = newReserved
	return l.store.PutWallet(ctx, w)
}
