package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// MarketService defines what the market handler needs from the service layer.
// Declared locally so the handler package does not depend on the concrete
// service implementation.
type MarketService interface {
	Get(ctx context.Context, marketID string) (domain.Market, error)
	List(ctx context.Context) ([]domain.Market, error)
	ListByPlatform(ctx context.Context, platform string) ([]domain.Market, error)
	ListActive(ctx context.Context) ([]domain.Market, error)
	Resolve(ctx context.Context, marketID string, outcome bool) error
}

// MarketHandler serves market registry endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns all tracked markets, optionally filtered by platform.
// GET /api/markets?platform=Polymarket
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	var (
		markets []domain.Market
		err     error
	)
	if platform := r.URL.Query().Get("platform"); platform != "" {
		markets, err = h.markets.ListByPlatform(r.Context(), platform)
	} else {
		markets, err = h.markets.List(r.Context())
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, markets)
}

// ListActive returns unresolved markets whose end time is in the future.
// GET /api/markets/active
func (h *MarketHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.ListActive(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list active markets failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, markets)
}

// GetMarket returns a single market by its composite ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, market)
}

type resolveRequest struct {
	Outcome *bool `json:"outcome"`
}

// ResolveMarket records the final outcome of a market. Resolution is
// one-way; a second attempt returns 409.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}

	if err := h.markets.Resolve(r.Context(), id, *req.Outcome); err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"marketId": id,
		"outcome":  *req.Outcome,
	})
}
