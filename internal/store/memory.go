package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gamemarket/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	assets  map[string]*model.Asset
	orders  map[string]*model.Order
	wallets map[string]*model.Wallet
	holding map[string]*model.PlayerAsset // key: playerID + "/" + assetID
	trades  []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets:  make(map[string]*model.Asset),
		orders:  make(map[string]*model.Order),
		wallets: make(map[string]*model.Wallet),
		holding: make(map[string]*model.PlayerAsset),
	}
}

func holdingKey(playerID, assetID string) string {
	return playerID + "/" + assetID
}

func (s *MemoryStore) CreateAsset(_ context.Context, a *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAssets(_ context.Context) ([]model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]model.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, id string, remaining int64, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Remaining = remaining
	o.Status = status
	return nil
}

func (s *MemoryStore) OpenOrders(_ context.Context, assetID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []model.Order
	for _, o := range s.orders {
		if o.Status.Terminal() {
			continue
		}
		if assetID != "" && o.AssetID != assetID {
			continue
		}
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders, nil
}

func (s *MemoryStore) GetWallet(_ context.Context, playerID string) (*model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) PutWallet(_ context.Context, w *model.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *w
	s.wallets[w.PlayerID] = &cp
	return nil
}

func (s *MemoryStore) GetPlayerAsset(_ context.Context, playerID, assetID string) (*model.PlayerAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pa, ok := s.holding[holdingKey(playerID, assetID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pa
	return &cp, nil
}

func (s *MemoryStore) PutPlayerAsset(_ context.Context, pa *model.PlayerAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *pa
	s.holding[holdingKey(pa.PlayerID, pa.AssetID)] = &cp
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) TradesByAsset(_ context.Context, assetID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.AssetID == assetID {
			result = append(result, t)
		}
	}
	// Append order already follows execution time.
	return result, nil
}

func (s *MemoryStore) TradesByPlayer(_ context.Context, playerID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if s.orderOwnedBy(t.BuyOrderID, playerID) || s.orderOwnedBy(t.SellOrderID, playerID) {
			result = append(result, t)
		}
	}
	return result, nil
}

// orderOwnedBy checks ownership under the already-held read lock.
func (s *MemoryStore) orderOwnedBy(orderID, playerID string) bool {
	o, ok := s.orders[orderID]
	return ok && o.PlayerID == playerID
}

func (s *MemoryStore) DailyMinPrices(_ context.Context, assetID string) ([]model.DailyPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]model.DailyPrice)
	for _, t := range s.trades {
		if t.AssetID != assetID {
			continue
		}
		day := t.ExecutedAt.UTC().Format("2006-01-02")
		cur, ok := byDay[day]
		if !ok || t.Price.LessThan(cur.MinPrice) {
			byDay[day] = model.DailyPrice{Date: day, MinPrice: t.Price}
		}
	}

	result := make([]model.DailyPrice, 0, len(byDay))
	for _, dp := range byDay {
		result = append(result, dp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}
