package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// SignalService defines what the analysis handler needs from the signal
// engine.
type SignalService interface {
	Analyze(ctx context.Context, marketID string) (domain.AnalysisResult, error)
	GetConfidence(ctx context.Context, marketID string) (int64, error)
	RecommendBet(ctx context.Context, marketID string, prefs domain.BetPreferences) (domain.BetRecommendation, error)
}

// AnalysisHandler serves signal-engine endpoints.
type AnalysisHandler struct {
	signals SignalService
	logger  *slog.Logger
}

func NewAnalysisHandler(signals SignalService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{signals: signals, logger: logger}
}

// Analyze runs a full analysis of one market.
// GET /api/analysis/{id}
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	result, err := h.signals.Analyze(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, result)
}

// GetConfidence returns the cached or freshly computed confidence for a
// market, in basis points.
// GET /api/analysis/{id}/confidence
func (h *AnalysisHandler) GetConfidence(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	confidence, err := h.signals.GetConfidence(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"marketId":   id,
		"confidence": confidence,
	})
}

type recommendRequest struct {
	RiskTolerance string  `json:"riskTolerance"`
	MaxBetSize    float64 `json:"maxBetSize"`
}

// RecommendBet produces a sizing recommendation for one market.
// POST /api/analysis/{id}/recommend
func (h *AnalysisHandler) RecommendBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req recommendRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxBetSize < 0 {
		writeError(w, http.StatusBadRequest, "maxBetSize must not be negative")
		return
	}

	rec, err := h.signals.RecommendBet(r.Context(), id, domain.BetPreferences{
		RiskTolerance: domain.RiskLevel(req.RiskTolerance),
		MaxBetSize:    req.MaxBetSize,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeData(w, http.StatusOK, rec)
}
