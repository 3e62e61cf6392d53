package domain

// Recommendation is the categorical direction a market analysis suggests.
type Recommendation string

const (
	RecommendationYes     Recommendation = "yes"
	RecommendationNo      Recommendation = "no"
	RecommendationNeutral Recommendation = "neutral"
)

// RiskLevel is the qualitative risk tier attached to an analysis.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AnalysisResult is the derived confidence signal for a market. It is
// recomputed on demand; only Confidence is cached back onto the Market.
type AnalysisResult struct {
	Confidence     int64          `json:"confidence"` // bps, 0-10000
	Recommendation Recommendation `json:"recommendation"`
	Reasoning      string         `json:"reasoning"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	ExpectedValue  float64        `json:"expectedValue"` // 0-100
}

// BetPreferences are the caller-supplied sizing constraints for a bet
// recommendation. A zero MaxBetSize means "use the default".
type BetPreferences struct {
	RiskTolerance RiskLevel `json:"riskTolerance,omitempty"`
	MaxBetSize    float64   `json:"maxBetSize,omitempty"`
}

// BetRecommendation is a Kelly-sized stake suggestion for one market. Side is
// always "yes" or "no"; a neutral analysis maps to "no".
type BetRecommendation struct {
	MarketID          string  `json:"marketId"`
	Side              string  `json:"side"`
	Confidence        int64   `json:"confidence"` // bps
	RecommendedAmount float64 `json:"recommendedAmount"`
	Reasoning         string  `json:"reasoning"`
	RiskLevel         string  `json:"riskLevel"`
}
