package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestGetOrder_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()

	if _, err := ms.GetOrder(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateOrder_CopyOnReturn(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	o := &model.Order{ID: "o1", PlayerID: "p1", AssetID: "sword", Side: model.SideBuy,
		Price: d(5), Quantity: 3, Remaining: 3, Status: model.StatusOpen, Seq: 1}
	if err := ms.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating either the input or a returned row must not leak.
	o.Remaining = 99
	got, _ := ms.GetOrder(ctx, "o1")
	if got.Remaining != 3 {
		t.Errorf("input mutation leaked into store: remaining=%d", got.Remaining)
	}
	got.Status = model.StatusCancelled
	again, _ := ms.GetOrder(ctx, "o1")
	if again.Status != model.StatusOpen {
		t.Errorf("returned-row mutation leaked into store: status=%s", again.Status)
	}
}

func TestOpenOrders_FiltersTerminalAndAsset(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	orders := []*model.Order{
		{ID: "o1", AssetID: "sword", Status: model.StatusOpen, Seq: 3},
		{ID: "o2", AssetID: "sword", Status: model.StatusPartiallyFilled, Seq: 1},
		{ID: "o3", AssetID: "sword", Status: model.StatusFilled, Seq: 2},
		{ID: "o4", AssetID: "shield", Status: model.StatusOpen, Seq: 4},
		{ID: "o5", AssetID: "sword", Status: model.StatusCancelled, Seq: 5},
	}
	for _, o := range orders {
		if err := ms.CreateOrder(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	got, err := ms.OpenOrders(ctx, "sword")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(got) != 2 || got[0].ID != "o2" || got[1].ID != "o1" {
		t.Errorf("expected [o2 o1] by seq, got %+v", got)
	}

	all, _ := ms.OpenOrders(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 open orders across assets, got %d", len(all))
	}
}

func TestTradesByPlayer_MatchesEitherSide(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.CreateOrder(ctx, &model.Order{ID: "buy1", PlayerID: "alice"})
	ms.CreateOrder(ctx, &model.Order{ID: "sell1", PlayerID: "bob"})
	ms.CreateOrder(ctx, &model.Order{ID: "buy2", PlayerID: "carol"})
	ms.CreateOrder(ctx, &model.Order{ID: "sell2", PlayerID: "bob"})

	ms.InsertTrade(ctx, &model.Trade{ID: "t1", BuyOrderID: "buy1", SellOrderID: "sell1"})
	ms.InsertTrade(ctx, &model.Trade{ID: "t2", BuyOrderID: "buy2", SellOrderID: "sell2"})

	bob, err := ms.TradesByPlayer(ctx, "bob")
	if err != nil {
		t.Fatalf("trades by player: %v", err)
	}
	if len(bob) != 2 {
		t.Errorf("bob sold in both trades, expected 2, got %d", len(bob))
	}

	alice, _ := ms.TradesByPlayer(ctx, "alice")
	if len(alice) != 1 || alice[0].ID != "t1" {
		t.Errorf("expected only t1 for alice, got %+v", alice)
	}

	none, _ := ms.TradesByPlayer(ctx, "stranger")
	if len(none) != 0 {
		t.Errorf("expected no trades for stranger, got %d", len(none))
	}
}

func TestDailyMinPrices_AggregatesPerDay(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	ms.InsertTrade(ctx, &model.Trade{ID: "t1", AssetID: "sword", Price: d(9), ExecutedAt: day1})
	ms.InsertTrade(ctx, &model.Trade{ID: "t2", AssetID: "sword", Price: d(7), ExecutedAt: day1.Add(2 * time.Hour)})
	ms.InsertTrade(ctx, &model.Trade{ID: "t3", AssetID: "sword", Price: d(8), ExecutedAt: day2})
	ms.InsertTrade(ctx, &model.Trade{ID: "t4", AssetID: "shield", Price: d(1), ExecutedAt: day1})

	prices, err := ms.DailyMinPrices(ctx, "sword")
	if err != nil {
		t.Fatalf("daily min prices: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 days, got %d", len(prices))
	}
	if prices[0].Date != "2026-03-01" || !prices[0].MinPrice.Equal(d(7)) {
		t.Errorf("day 1: expected min 7, got %s @ %s", prices[0].MinPrice, prices[0].Date)
	}
	if prices[1].Date != "2026-03-02" || !prices[1].MinPrice.Equal(d(8)) {
		t.Errorf("day 2: expected min 8, got %s @ %s", prices[1].MinPrice, prices[1].Date)
	}
}

func TestWalletAndHoldingRoundTrip(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetWallet(ctx, "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing wallet, got %v", err)
	}
	ms.PutWallet(ctx, &model.Wallet{PlayerID: "p1", Balance: d(10), Reserved: d(2)})
	w, err := ms.GetWallet(ctx, "p1")
	if err != nil || !w.Balance.Equal(d(10)) || !w.Reserved.Equal(d(2)) {
		t.Errorf("wallet round trip: %+v err=%v", w, err)
	}

	if _, err := ms.GetPlayerAsset(ctx, "p1", "sword"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing holding, got %v", err)
	}
	ms.PutPlayerAsset(ctx, &model.PlayerAsset{PlayerID: "p1", AssetID: "sword", Quantity: 5, Reserved: 1})
	pa, err := ms.GetPlayerAsset(ctx, "p1", "sword")
	if err != nil || pa.Quantity != 5 || pa.Reserved != 1 {
		t.Errorf("holding round trip: %+v err=%v", pa, err)
	}
}
