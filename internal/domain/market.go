package domain

// Market is one prediction-market instrument tracked across platforms.
// Prices are quoted in basis points (10000 bps = 100%); YesPrice and NoPrice
// come straight from the platform and need not sum to 10000.
type Market struct {
	MarketID     string  `json:"marketId"`
	Platform     string  `json:"platform"`
	Question     string  `json:"question"`
	EndTime      int64   `json:"endTime"` // Unix seconds, resolution deadline
	YesPrice     int64   `json:"yesPrice"`
	NoPrice      int64   `json:"noPrice"`
	TotalVolume  float64 `json:"totalVolume"`
	Resolved     bool    `json:"resolved"`
	Outcome      *bool   `json:"outcome,omitempty"`      // set iff Resolved
	AIConfidence *int64  `json:"aiConfidence,omitempty"` // bps, cached by the signal engine
	LastUpdated  int64   `json:"lastUpdated"`            // Unix seconds, monotonically non-decreasing
}

// MarketSnapshot is the point-in-time set of platform-supplied fields for one
// market, as produced by a source adapter. Upserting a snapshot replaces the
// platform-supplied fields of the stored Market while Resolved, Outcome and
// AIConfidence are carried forward from the prior record.
type MarketSnapshot struct {
	MarketID string  `json:"marketId"`
	Platform string  `json:"platform"`
	Question string  `json:"question"`
	EndTime  int64   `json:"endTime"`
	YesPrice int64   `json:"yesPrice"`
	NoPrice  int64   `json:"noPrice"`
	Volume   float64 `json:"volume"`
}
