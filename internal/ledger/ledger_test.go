package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/ledger"
	"github.com/gamemarket/market-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newLedger() (*ledger.Ledger, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	return ledger.New(ms), ms
}

func TestCredit_CreatesWalletLazily(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	if err := l.Credit(ctx, "p1", d(100)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	w, err := l.Wallet(ctx, "p1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !w.Balance.Equal(d(100)) {
		t.Errorf("expected balance 100, got %s", w.Balance)
	}
	if !w.Reserved.IsZero() {
		t.Errorf("expected zero reserved, got %s", w.Reserved)
	}
}

func TestCredit_InvalidAmount(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, d(-5)} {
		if err := l.Credit(ctx, "p1", amount); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("credit %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestDebit_Sufficient(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(100))
	if err := l.Debit(ctx, "p1", d(40)); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	w, _ := l.Wallet(ctx, "p1")
	if !w.Balance.Equal(d(60)) {
		t.Errorf("expected balance 60, got %s", w.Balance)
	}
}

func TestDebit_Insufficient(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(30))
	if err := l.Debit(ctx, "p1", d(31)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	// Failed debit must not change the balance.
	w, _ := l.Wallet(ctx, "p1")
	if !w.Balance.Equal(d(30)) {
		t.Errorf("balance changed on failed debit: %s", w.Balance)
	}
}

func TestDebit_MissingWallet(t *testing.T) {
	l, _ := newLedger()

	if err := l.Debit(context.Background(), "ghost", d(1)); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestDebit_InvalidAmount(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(10))
	if err := l.Debit(ctx, "p1", decimal.Zero); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestHasSufficientFunds(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(50))

	ok, err := l.HasSufficientFunds(ctx, "p1", d(50))
	if err != nil || !ok {
		t.Errorf("expected sufficient at exactly 50, got ok=%v err=%v", ok, err)
	}
	ok, _ = l.HasSufficientFunds(ctx, "p1", d(50.01))
	if ok {
		t.Error("expected insufficient above balance")
	}
	ok, _ = l.HasSufficientFunds(ctx, "ghost", d(1))
	if ok {
		t.Error("missing wallet should count as zero balance")
	}
}

func TestRecharge_ReturnsUpdatedWallet(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	w, err := l.Recharge(ctx, "p1", d(250))
	if err != nil {
		t.Fatalf("recharge failed: %v", err)
	}
	if !w.Balance.Equal(d(250)) {
		t.Errorf("expected balance 250, got %s", w.Balance)
	}

	w, _ = l.Recharge(ctx, "p1", d(50))
	if !w.Balance.Equal(d(300)) {
		t.Errorf("expected balance 300 after second recharge, got %s", w.Balance)
	}
}

func TestReservationLifecycle(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(100))

	if err := l.ReserveFunds(ctx, "p1", d(60)); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	w, _ := l.Wallet(ctx, "p1")
	if !w.Balance.Equal(d(40)) || !w.Reserved.Equal(d(60)) {
		t.Errorf("after reserve: balance=%s reserved=%s", w.Balance, w.Reserved)
	}

	// Total exposure is unchanged by the reservation.
	if !w.Balance.Add(w.Reserved).Equal(d(100)) {
		t.Errorf("reservation changed total exposure: %s", w.Balance.Add(w.Reserved))
	}

	if err := l.ReleaseReserved(ctx, "p1", d(20)); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	w, _ = l.Wallet(ctx, "p1")
	if !w.Balance.Equal(d(60)) || !w.Reserved.Equal(d(40)) {
		t.Errorf("after release: balance=%s reserved=%s", w.Balance, w.Reserved)
	}

	if err := l.CommitReserved(ctx, "p1", d(40)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	w, _ = l.Wallet(ctx, "p1")
	if !w.Balance.Equal(d(60)) || !w.Reserved.IsZero() {
		t.Errorf("after commit: balance=%s reserved=%s", w.Balance, w.Reserved)
	}
}

func TestReserveFunds_Insufficient(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(10))
	if err := l.ReserveFunds(ctx, "p1", d(11)); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestReleaseReserved_ClampsAtZero(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(100))
	l.ReserveFunds(ctx, "p1", d(10))

	// Over-release: reserved clamps to zero, no error.
	if err := l.ReleaseReserved(ctx, "p1", d(25)); err != nil {
		t.Fatalf("over-release should not fail: %v", err)
	}
	w, _ := l.Wallet(ctx, "p1")
	if w.Reserved.IsNegative() {
		t.Errorf("reserved went negative: %s", w.Reserved)
	}
	if !w.Reserved.IsZero() {
		t.Errorf("expected reserved clamped to zero, got %s", w.Reserved)
	}
}

func TestCommitReserved_ClampsAtZero(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "p1", d(100))
	l.ReserveFunds(ctx, "p1", d(5))

	if err := l.CommitReserved(ctx, "p1", d(9)); err != nil {
		t.Fatalf("over-commit should not fail: %v", err)
	}
	w, _ := l.Wallet(ctx, "p1")
	if w.Reserved.IsNegative() {
		t.Errorf("reserved went negative: %s", w.Reserved)
	}
}

// Trades are zero-sum: a debit/credit pair between two players never
// changes the total funds in the system.
func TestConservation_DebitCreditPairs(t *testing.T) {
	l, _ := newLedger()
	ctx := context.Background()

	l.Credit(ctx, "a", d(500))
	l.Credit(ctx, "b", d(200))

	total := func() decimal.Decimal {
		wa, _ := l.Wallet(ctx, "a")
		wb, _ := l.Wallet(ctx, "b")
		return wa.Balance.Add(wa.Reserved).Add(wb.Balance).Add(wb.Reserved)
	}
	before := total()

	for i := 0; i < 10; i++ {
		if err := l.Debit(ctx, "a", d(13)); err != nil {
			t.Fatalf("debit %d: %v", i, err)
		}
		if err := l.Credit(ctx, "b", d(13)); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}

	if !total().Equal(before) {
		t.Errorf("total funds changed: before=%s after=%s", before, total())
	}
}
