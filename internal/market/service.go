// Package market provides the HTTP handlers and request/response shaping
// for the game-asset marketplace: order placement and cancellation, open
// listings, trade history, and wallet top-ups.
//
// All monetary values use shopspring/decimal — never float64 for money.
package market

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gamemarket/market-engine/internal/engine"
	"github.com/gamemarket/market-engine/internal/feed"
	"github.com/gamemarket/market-engine/internal/inventory"
	"github.com/gamemarket/market-engine/internal/ledger"
	"github.com/gamemarket/market-engine/internal/model"
	"github.com/gamemarket/market-engine/internal/store"
)

// Service handles marketplace operations over the matching engine.
type Service struct {
	engine *engine.Engine
	store  store.Store
	wsHub  *WSHub         // optional WebSocket hub for real-time broadcasts
	feed   feed.Publisher // optional Kafka trade feed
}

// NewService creates a new market service.
// Pass nil for hub and publisher if broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, hub *WSHub, pub feed.Publisher) *Service {
	return &Service{
		engine: eng,
		store:  st,
		wsHub:  hub,
		feed:   pub,
	}
}

// --- Request/Response types ---

// PlaceOrderRequest is the JSON body for POST /orders.
type PlaceOrderRequest struct {
	PlayerID string          `json:"player_id"`
	AssetID  string          `json:"asset_id"`
	Side     model.Side      `json:"side"` // "BUY" or "SELL"
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// PlaceOrderResponse is the JSON body returned from POST /orders.
type PlaceOrderResponse struct {
	Order  *model.Order  `json:"order"`
	Trades []model.Trade `json:"trades"`
	Wallet WalletSummary `json:"wallet"`
}

// WalletSummary is the requester's wallet snapshot included in responses.
type WalletSummary struct {
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"` // same as balance under direct debit
}

// Listing is one open order joined with its asset metadata.
type Listing struct {
	OrderID   string          `json:"order_id"`
	AssetID   string          `json:"asset_id"`
	AssetName string          `json:"asset_name"`
	Category  string          `json:"category"`
	Side      model.Side      `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Remaining int64           `json:"remaining"`
	CreatedAt string          `json:"created_at"`
}

// ListingsPage is the paginated listings response.
type ListingsPage struct {
	Content       []Listing `json:"content"`
	TotalPages    int       `json:"total_pages"`
	TotalElements int       `json:"total_elements"`
	Number        int       `json:"number"`
	Size          int       `json:"size"`
}

// RechargeRequest is the JSON body for POST /wallets/{playerID}/recharge.
type RechargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// GrantRequest is the JSON body for POST /players/{playerID}/assets.
type GrantRequest struct {
	AssetID  string `json:"asset_id"`
	Quantity int64  `json:"quantity"`
}

// CreateAssetRequest is the JSON body for POST /assets.
type CreateAssetRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// --- HTTP Handlers ---

// PlaceOrder handles POST /api/v1/orders
// Places a limit order, matches it immediately, and returns the order's
// final state with the executed trades and the requester's wallet.
func (s *Service) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		writeError(w, "player_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	order, trades, err := s.engine.Submit(ctx, req.PlayerID, req.AssetID, req.Side, req.Price, req.Quantity)
	if err != nil {
		writeError(w, err.Error(), submitStatus(err))
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	for _, t := range trades {
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:        "trade_executed",
				AssetID:     t.AssetID,
				Price:       t.Price.String(),
				Quantity:    t.Quantity,
				BuyOrderID:  t.BuyOrderID,
				SellOrderID: t.SellOrderID,
			})
		}
		if s.feed != nil {
			s.feed.PublishTrade(ctx, t)
		}
	}

	wallet, err := s.engine.Ledger().Wallet(ctx, req.PlayerID)
	if err != nil {
		writeError(w, "failed to load wallet", http.StatusInternalServerError)
		return
	}

	resp := PlaceOrderResponse{
		Order:  order,
		Trades: trades,
		Wallet: WalletSummary{
			Balance:   wallet.Balance,
			Reserved:  wallet.Reserved,
			Available: wallet.Balance,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// submitStatus maps engine submission errors to HTTP status codes.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrInsufficientInventory):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidSide),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}?player_id=...
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		writeError(w, "player_id is required", http.StatusBadRequest)
		return
	}

	err := s.engine.Cancel(r.Context(), orderID, playerID)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrOrderNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, engine.ErrNotOwner):
		writeError(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, engine.ErrNotCancellable):
		writeError(w, err.Error(), http.StatusConflict)
		return
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "order cancelled"})
}

// GetListings handles GET /api/v1/listings
// Returns open orders joined with asset metadata, filtered by optional
// asset_id, keyword (name substring), and category query parameters, with
// optional sort (price_asc, price_desc, newest) and page/size pagination.
func (s *Service) GetListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	orders, err := s.engine.OpenOrders(ctx, q.Get("asset_id"))
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		writeError(w, "failed to load assets", http.StatusInternalServerError)
		return
	}
	assetByID := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		assetByID[a.ID] = a
	}

	keyword := strings.ToLower(q.Get("keyword"))
	category := q.Get("category")

	listings := make([]Listing, 0, len(orders))
	for _, o := range orders {
		a := assetByID[o.AssetID]
		if keyword != "" && !strings.Contains(strings.ToLower(a.Name), keyword) {
			continue
		}
		if category != "" && category != "All" && !strings.EqualFold(a.Category, category) {
			continue
		}
		listings = append(listings, Listing{
			OrderID:   o.ID,
			AssetID:   o.AssetID,
			AssetName: a.Name,
			Category:  a.Category,
			Side:      o.Side,
			Price:     o.Price,
			Remaining: o.Remaining,
			CreatedAt: o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	switch q.Get("sort") {
	case "price_asc":
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Price.LessThan(listings[j].Price)
		})
	case "price_desc":
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].Price.GreaterThan(listings[j].Price)
		})
	case "newest":
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].CreatedAt > listings[j].CreatedAt
		})
	}

	w.Header().Set("Content-Type", "application/json")

	pageStr, sizeStr := q.Get("page"), q.Get("size")
	if pageStr != "" && sizeStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 0 {
			writeError(w, "page must be a non-negative integer", http.StatusBadRequest)
			return
		}
		size, err := strconv.Atoi(sizeStr)
		if err != nil || size <= 0 {
			writeError(w, "size must be a positive integer", http.StatusBadRequest)
			return
		}

		total := len(listings)
		start := page * size
		end := min(start+size, total)
		content := []Listing{}
		if start < total {
			content = listings[start:end]
		}

		json.NewEncoder(w).Encode(ListingsPage{
			Content:       content,
			TotalPages:    int(math.Ceil(float64(total) / float64(size))),
			TotalElements: total,
			Number:        page,
			Size:          size,
		})
		return
	}

	limit := 100
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if len(listings) > limit {
		listings = listings[:limit]
	}
	json.NewEncoder(w).Encode(listings)
}

// GetHistory handles GET /api/v1/history?asset_id=...
// Returns trades for the asset ordered by execution time ascending.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	if assetID == "" {
		writeError(w, "asset_id is required", http.StatusBadRequest)
		return
	}

	trades, err := s.store.TradesByAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, "failed to get trade history", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GetDailyHistory handles GET /api/v1/history/daily?asset_id=...
// Returns the minimum execution price per calendar day for charting.
func (s *Service) GetDailyHistory(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	if assetID == "" {
		writeError(w, "asset_id is required", http.StatusBadRequest)
		return
	}

	prices, err := s.store.DailyMinPrices(r.Context(), assetID)
	if err != nil {
		writeError(w, "failed to get daily history", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []model.DailyPrice{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prices)
}

// GetCategories handles GET /api/v1/categories
// Returns the distinct asset categories.
func (s *Service) GetCategories(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to load assets", http.StatusInternalServerError)
		return
	}

	seen := make(map[string]bool)
	categories := []string{}
	for _, a := range assets {
		if a.Category != "" && !seen[a.Category] {
			seen[a.Category] = true
			categories = append(categories, a.Category)
		}
	}
	sort.Strings(categories)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(categories)
}

// GetWallet handles GET /api/v1/wallets/{playerID}
func (s *Service) GetWallet(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	wallet, err := s.engine.Ledger().Wallet(r.Context(), playerID)
	if err != nil {
		writeError(w, "failed to load wallet", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// Recharge handles POST /api/v1/wallets/{playerID}/recharge
// Tops up a wallet from an external source, creating it if absent.
func (s *Service) Recharge(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req RechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	wallet, err := s.engine.Ledger().Recharge(r.Context(), playerID, req.Amount)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("wallet recharged",
		"player", playerID,
		"amount", req.Amount.String(),
		"balance", wallet.Balance.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}

// GetPlayerTrades handles GET /api/v1/players/{playerID}/trades
// Returns trades touching any of the player's orders.
func (s *Service) GetPlayerTrades(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	trades, err := s.store.TradesByPlayer(r.Context(), playerID)
	if err != nil {
		writeError(w, "failed to get player trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// GrantAsset handles POST /api/v1/players/{playerID}/assets
// Issues asset units to a player (admin/seed path).
func (s *Service) GrantAsset(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := s.store.GetAsset(r.Context(), req.AssetID); err != nil {
		writeError(w, "asset not found", http.StatusNotFound)
		return
	}

	if err := s.engine.Inventory().Grant(r.Context(), playerID, req.AssetID, req.Quantity); err != nil {
		if errors.Is(err, inventory.ErrInvalidQuantity) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	holding, err := s.engine.Inventory().Holding(r.Context(), playerID, req.AssetID)
	if err != nil {
		writeError(w, "failed to load holding", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(holding)
}

// CreateAsset handles POST /api/v1/assets
func (s *Service) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	asset := &model.Asset{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Category: req.Category,
	}
	if err := s.store.CreateAsset(r.Context(), asset); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("asset created", "id", asset.ID, "name", asset.Name, "category", asset.Category)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(asset)
}

// ListAssets handles GET /api/v1/assets
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.ListAssets(r.Context())
	if err != nil {
		writeError(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
