package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// Oracle scores a market using an external model. It is optional: a nil
// oracle is a valid deployment and every oracle failure has a deterministic
// heuristic fallback.
type Oracle interface {
	Analyze(ctx context.Context, m domain.Market) (domain.AnalysisResult, error)
}

// kellyCap bounds the Kelly fraction; betCap bounds the stake relative to the
// caller's maximum bet size regardless of what Kelly suggests.
const (
	kellyCap = 0.25
	betCap   = 0.10
)

// SignalService derives confidence scores, recommendations and Kelly-sized
// stake suggestions for markets.
type SignalService struct {
	markets       *MarketService
	oracle        Oracle
	defaultMaxBet float64
	logger        *slog.Logger
}

// NewSignalService creates a SignalService. oracle may be nil.
func NewSignalService(markets *MarketService, oracle Oracle, defaultMaxBet float64, logger *slog.Logger) *SignalService {
	if defaultMaxBet <= 0 {
		defaultMaxBet = 1000
	}
	return &SignalService{
		markets:       markets,
		oracle:        oracle,
		defaultMaxBet: defaultMaxBet,
		logger:        logger,
	}
}

// Analyze produces an AnalysisResult for the market. It consults the oracle
// when one is configured and falls back to the deterministic heuristic on any
// oracle failure. Returns domain.ErrNotFound for unknown markets.
func (s *SignalService) Analyze(ctx context.Context, marketID string) (domain.AnalysisResult, error) {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("signal_service: analyze %q: %w", marketID, err)
	}
	return s.analyzeMarket(ctx, m), nil
}

// analyzeMarket runs the oracle-or-heuristic pipeline. It never fails:
// upstream errors are absorbed into the heuristic path.
func (s *SignalService) analyzeMarket(ctx context.Context, m domain.Market) domain.AnalysisResult {
	if s.oracle == nil {
		return heuristicAnalysis(m)
	}

	result, err := s.oracle.Analyze(ctx, m)
	if err != nil {
		s.logger.WarnContext(ctx, "signal_service: oracle failed, using heuristic",
			slog.String("market_id", m.MarketID),
			slog.String("error", err.Error()),
		)
		return heuristicAnalysis(m)
	}
	return result
}

// heuristicAnalysis is the deterministic fallback scorer: confidence moves
// against the yes price, clamped to [3000, 8000] bps; high volume lowers the
// risk tier to medium.
func heuristicAnalysis(m domain.Market) domain.AnalysisResult {
	priceDiff := float64(5000-m.YesPrice) / 100
	confidence := math.Min(8000, math.Max(3000, 5000+priceDiff*50))

	recommendation := domain.RecommendationNo
	if m.YesPrice < 5000 {
		recommendation = domain.RecommendationYes
	}

	risk := domain.RiskHigh
	if m.TotalVolume > 1_000_000 {
		risk = domain.RiskMedium
	}

	return domain.AnalysisResult{
		Confidence:     int64(math.Round(confidence)),
		Recommendation: recommendation,
		Reasoning:      "Based on current market pricing and volume analysis.",
		RiskLevel:      risk,
		ExpectedValue:  55,
	}
}

// GetConfidence returns the market's confidence score in basis points. A
// previously cached score is returned without recomputation; otherwise the
// market is analyzed once and the score persisted onto it.
func (s *SignalService) GetConfidence(ctx context.Context, marketID string) (int64, error) {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("signal_service: get confidence %q: %w", marketID, err)
	}

	if m.AIConfidence != nil {
		return *m.AIConfidence, nil
	}

	analysis := s.analyzeMarket(ctx, m)
	if err := s.markets.SetConfidence(ctx, marketID, analysis.Confidence); err != nil {
		return 0, fmt.Errorf("signal_service: persist confidence %q: %w", marketID, err)
	}
	return analysis.Confidence, nil
}

// RecommendBet produces a Kelly-sized stake suggestion for the market. The
// stake is clamped so it is never negative, never NaN, and never exceeds 10%
// of the caller's maximum bet size.
func (s *SignalService) RecommendBet(ctx context.Context, marketID string, prefs domain.BetPreferences) (domain.BetRecommendation, error) {
	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.BetRecommendation{}, fmt.Errorf("signal_service: recommend bet %q: %w", marketID, err)
	}

	analysis := s.analyzeMarket(ctx, m)

	f := kellyFraction(
		float64(analysis.Confidence)/10000,
		float64(m.YesPrice)/10000,
		float64(m.NoPrice)/10000,
	)

	maxBet := prefs.MaxBetSize
	if maxBet <= 0 {
		maxBet = s.defaultMaxBet
	}
	amount := math.Min(maxBet*f, maxBet*betCap)

	side := "no"
	if analysis.Recommendation == domain.RecommendationYes {
		side = "yes"
	}

	return domain.BetRecommendation{
		MarketID:          marketID,
		Side:              side,
		Confidence:        analysis.Confidence,
		RecommendedAmount: amount,
		Reasoning:         analysis.Reasoning,
		RiskLevel:         string(analysis.RiskLevel),
	}, nil
}

// kellyFraction computes the Kelly criterion fraction f = (bp - q) / b for
// win probability p against the cheaper side's net odds b, clamped to
// [0, kellyCap]. Degenerate odds (zero or undefined) yield zero rather than
// a NaN or negative stake.
func kellyFraction(p, yesFrac, noFrac float64) float64 {
	var price float64
	if yesFrac < 0.5 {
		price = yesFrac
	} else {
		price = noFrac
	}
	if price <= 0 || price >= 1 {
		return 0
	}

	b := 1/price - 1
	if b <= 0 {
		return 0
	}

	kelly := (b*p - (1 - p)) / b
	if math.IsNaN(kelly) || kelly < 0 {
		return 0
	}
	return math.Min(kellyCap, kelly)
}
