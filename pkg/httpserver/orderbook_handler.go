package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/mselser95/polymarket-arb/internal/orderbook"
	"github.com/mselser95/polymarket-arb/internal/registry"
	"go.uber.org/zap"
)

// OrderbookHandler handles HTTP requests for orderbook data.
type OrderbookHandler struct {
	store    *orderbook.Store
	registry *registry.Registry
	logger   *zap.Logger
}

// NewOrderbookHandler creates a new orderbook handler.
func NewOrderbookHandler(store *orderbook.Store, reg *registry.Registry, logger *zap.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		store:    store,
		registry: reg,
		logger:   logger,
	}
}

// OutcomeOrderbook represents orderbook data for a single outcome.
type OutcomeOrderbook struct {
	Outcome      string  `json:"outcome"`
	TokenID      string  `json:"token_id"`
	BestBidPrice float64 `json:"best_bid_price"`
	BestBidSize  float64 `json:"best_bid_size"`
	BestAskPrice float64 `json:"best_ask_price"`
	BestAskSize  float64 `json:"best_ask_size"`
}

// OrderbookResponse represents the HTTP response for orderbook data.
type OrderbookResponse struct {
	MarketID string             `json:"market_id"`
	TickSize float64            `json:"tick_size"`
	Outcomes []OutcomeOrderbook `json:"outcomes"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleOrderbook handles GET /api/orderbook?market_id=<id> requests,
// returning both legs' best bid/ask as currently held in the orderbook store.
func (h *OrderbookHandler) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	marketID := r.URL.Query().Get("market_id")
	if marketID == "" {
		h.writeError(w, "missing required query parameter: market_id", http.StatusBadRequest)
		return
	}

	h.logger.Debug("orderbook-request-received", zap.String("market-id", marketID))

	market, exists := h.registry.Get(marketID)
	if !exists {
		h.writeError(w, "market not found", http.StatusNotFound)
		return
	}

	outcomes := make([]OutcomeOrderbook, 0, 2)
	for _, leg := range []struct {
		outcome string
		tokenID string
	}{
		{"UP", market.UpToken},
		{"DOWN", market.DownToken},
	} {
		snapshot, found := h.store.Snapshot(leg.tokenID)
		if !found {
			h.logger.Debug("orderbook-not-available", zap.String("token-id", leg.tokenID), zap.String("outcome", leg.outcome))
			continue
		}
		outcomes = append(outcomes, OutcomeOrderbook{
			Outcome:      leg.outcome,
			TokenID:      leg.tokenID,
			BestBidPrice: snapshot.BestBidPrice,
			BestBidSize:  snapshot.BestBidSize,
			BestAskPrice: snapshot.BestAskPrice,
			BestAskSize:  snapshot.BestAskSize,
		})
	}

	response := OrderbookResponse{
		MarketID: market.MarketID,
		TickSize: market.TickSize,
		Outcomes: outcomes,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *OrderbookHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
