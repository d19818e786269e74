package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gamemarket/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the read-heavy chart and reference-data queries. Writes go to
// the primary store and invalidate the cache; reads check Redis first then
// fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	data, err := s.rdb.Get(ctx, assetKey(id)).Bytes()
	if err == nil {
		var a model.Asset
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(id), data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) TradesByAsset(ctx context.Context, assetID string) ([]model.Trade, error) {
	data, err := s.rdb.Get(ctx, historyKey(assetID)).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	trades, err := s.primary.TradesByAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, historyKey(assetID), data, s.ttl)
	}
	return trades, nil
}

func (s *CachedStore) DailyMinPrices(ctx context.Context, assetID string) ([]model.DailyPrice, error) {
	data, err := s.rdb.Get(ctx, dailyKey(assetID)).Bytes()
	if err == nil {
		var prices []model.DailyPrice
		if json.Unmarshal(data, &prices) == nil {
			return prices, nil
		}
	}

	prices, err := s.primary.DailyMinPrices(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(prices); err == nil {
		s.rdb.Set(ctx, dailyKey(assetID), data, s.ttl)
	}
	return prices, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	if err := s.primary.CreateAsset(ctx, a); err != nil {
		return err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, assetKey(a.ID), data, s.ttl)
	}
	return nil
}

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	// Invalidate chart caches; next read re-populates.
	s.rdb.Del(ctx, historyKey(t.AssetID), dailyKey(t.AssetID))
	return nil
}

// --- Passthrough (not cached: order/wallet/holding rows are hot and
// mutated inside the matching path, so a stale read is never acceptable) ---

func (s *CachedStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	return s.primary.ListAssets(ctx)
}

func (s *CachedStore) CreateOrder(ctx context.Context, o *model.Order) error {
	return s.primary.CreateOrder(ctx, o)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) UpdateOrder(ctx context.Context, id string, remaining int64, status model.OrderStatus) error {
	return s.primary.UpdateOrder(ctx, id, remaining, status)
}

func (s *CachedStore) OpenOrders(ctx context.Context, assetID string) ([]model.Order, error) {
	return s.primary.OpenOrders(ctx, assetID)
}

func (s *CachedStore) GetWallet(ctx context.Context, playerID string) (*model.Wallet, error) {
	return s.primary.GetWallet(ctx, playerID)
}

func (s *CachedStore) PutWallet(ctx context.Context, w *model.Wallet) error {
	return s.primary.PutWallet(ctx, w)
}

func (s *CachedStore) GetPlayerAsset(ctx context.Context, playerID, assetID string) (*model.PlayerAsset, error) {
	return s.primary.GetPlayerAsset(ctx, playerID, assetID)
}

func (s *CachedStore) PutPlayerAsset(ctx context.Context, pa *model.PlayerAsset) error {
	return s.primary.PutPlayerAsset(ctx, pa)
}

func (s *CachedStore) TradesByPlayer(ctx context.Context, playerID string) ([]model.Trade, error) {
	return s.primary.TradesByPlayer(ctx, playerID)
}

// --- Cache keys ---

func assetKey(id string) string   { return fmt.Sprintf("asset:%s", id) }
func historyKey(id string) string { return fmt.Sprintf("history:%s", id) }
func dailyKey(id string) string   { return fmt.Sprintf("history:daily:%s", id) }
