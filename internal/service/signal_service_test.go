package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
	"github.com/crypmancer/defi-prediction-aggregator/internal/store/memory"
)

type stubOracle struct {
	result domain.AnalysisResult
	err    error
	calls  int
}

func (o *stubOracle) Analyze(_ context.Context, _ domain.Market) (domain.AnalysisResult, error) {
	o.calls++
	return o.result, o.err
}

func seedMarket(t *testing.T, markets *MarketService, yesPrice int64, volume float64) string {
	t.Helper()
	snap := domain.MarketSnapshot{
		MarketID: "mkt-1",
		Platform: "polymarket",
		Question: "Will it settle yes?",
		EndTime:  time.Now().Add(24 * time.Hour).Unix(),
		YesPrice: yesPrice,
		NoPrice:  10000 - yesPrice,
		Volume:   volume,
	}
	_, err := markets.UpsertSnapshots(context.Background(), []domain.MarketSnapshot{snap})
	require.NoError(t, err)
	return snap.MarketID
}

func newSignalFixture(t *testing.T, oracle Oracle) (*SignalService, *MarketService) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	markets := NewMarketService(memory.NewMarketStore(), nil, nil, nil, logger)
	return NewSignalService(markets, oracle, 1000, logger), markets
}

func TestHeuristicConfidence(t *testing.T) {
	tests := []struct {
		name     string
		yesPrice int64
		want     int64
	}{
		{"cheap yes side", 4500, 5250},
		{"even market", 5000, 5000},
		{"clamped low", 9999, 3000},
		{"deep discount", 0, 7500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, markets := newSignalFixture(t, nil)
			id := seedMarket(t, markets, tt.yesPrice, 50_000)

			result, err := svc.Analyze(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Confidence)
		})
	}
}

func TestHeuristicRecommendationAndRisk(t *testing.T) {
	svc, markets := newSignalFixture(t, nil)

	id := seedMarket(t, markets, 4500, 2_000_000)
	result, err := svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendationYes, result.Recommendation)
	assert.Equal(t, domain.RiskMedium, result.RiskLevel)

	id = seedMarket(t, markets, 6000, 1_000_000)
	result, err = svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendationNo, result.Recommendation)
	// Risk drops to medium only strictly above the volume threshold.
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
}

func TestAnalyzeUnknownMarket(t *testing.T) {
	svc, _ := newSignalFixture(t, nil)

	_, err := svc.Analyze(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyzePrefersOracle(t *testing.T) {
	oracle := &stubOracle{result: domain.AnalysisResult{
		Confidence:     7200,
		Recommendation: domain.RecommendationYes,
		Reasoning:      "model output",
		RiskLevel:      domain.RiskLow,
		ExpectedValue:  61,
	}}
	svc, markets := newSignalFixture(t, oracle)
	id := seedMarket(t, markets, 4500, 50_000)

	result, err := svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, oracle.result, result)
	assert.Equal(t, 1, oracle.calls)
}

func TestAnalyzeFallsBackOnOracleFailure(t *testing.T) {
	oracle := &stubOracle{err: errors.New("rate limited")}
	svc, markets := newSignalFixture(t, oracle)
	id := seedMarket(t, markets, 4500, 50_000)

	result, err := svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5250), result.Confidence)
	assert.Equal(t, domain.RecommendationYes, result.Recommendation)
}

func TestGetConfidenceMemoizes(t *testing.T) {
	oracle := &stubOracle{result: domain.AnalysisResult{
		Confidence:     6400,
		Recommendation: domain.RecommendationYes,
		RiskLevel:      domain.RiskMedium,
	}}
	svc, markets := newSignalFixture(t, oracle)
	id := seedMarket(t, markets, 4500, 50_000)
	ctx := context.Background()

	conf, err := svc.GetConfidence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(6400), conf)

	// Second call serves the persisted score without consulting the oracle.
	conf, err = svc.GetConfidence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(6400), conf)
	assert.Equal(t, 1, oracle.calls)

	m, err := markets.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m.AIConfidence)
	assert.Equal(t, int64(6400), *m.AIConfidence)
}

func TestRecommendBetStakeBounds(t *testing.T) {
	svc, markets := newSignalFixture(t, nil)
	id := seedMarket(t, markets, 2000, 2_000_000)
	ctx := context.Background()

	rec, err := svc.RecommendBet(ctx, id, domain.BetPreferences{MaxBetSize: 500})
	require.NoError(t, err)
	assert.Equal(t, "yes", rec.Side)
	assert.False(t, rec.RecommendedAmount < 0)
	// The stake never exceeds 10% of the maximum bet size.
	assert.LessOrEqual(t, rec.RecommendedAmount, 50.0)
}

func TestRecommendBetDefaultsMaxBet(t *testing.T) {
	svc, markets := newSignalFixture(t, nil)
	id := seedMarket(t, markets, 2000, 2_000_000)

	rec, err := svc.RecommendBet(context.Background(), id, domain.BetPreferences{})
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.RecommendedAmount, 100.0)
	assert.Greater(t, rec.RecommendedAmount, 0.0)
}

func TestRecommendBetNeutralMapsToNo(t *testing.T) {
	oracle := &stubOracle{result: domain.AnalysisResult{
		Confidence:     5000,
		Recommendation: domain.RecommendationNeutral,
		RiskLevel:      domain.RiskMedium,
	}}
	svc, markets := newSignalFixture(t, oracle)
	id := seedMarket(t, markets, 5000, 50_000)

	rec, err := svc.RecommendBet(context.Background(), id, domain.BetPreferences{MaxBetSize: 100})
	require.NoError(t, err)
	assert.Equal(t, "no", rec.Side)
}

func TestRecommendBetDegenerateOdds(t *testing.T) {
	svc, markets := newSignalFixture(t, nil)
	id := seedMarket(t, markets, 0, 50_000)

	rec, err := svc.RecommendBet(context.Background(), id, domain.BetPreferences{MaxBetSize: 100})
	require.NoError(t, err)
	assert.Zero(t, rec.RecommendedAmount)
}

func TestKellyFraction(t *testing.T) {
	// p=0.6 on the yes side at 0.40: b=1.5, f=(1.5*0.6-0.4)/1.5=1/3, capped.
	assert.InDelta(t, kellyCap, kellyFraction(0.6, 0.40, 0.60), 1e-9)

	// Negative edge clamps to zero.
	assert.Zero(t, kellyFraction(0.3, 0.40, 0.60))

	// Degenerate prices.
	assert.Zero(t, kellyFraction(0.6, 0, 1))
	assert.Zero(t, kellyFraction(0.6, 1, 0))
}
