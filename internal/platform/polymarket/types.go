package polymarket

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// apiMarket is a market as returned by the Gamma API. Numeric fields arrive
// as strings; outcomePrices is a JSON array encoded inside a string.
type apiMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	EndDate       string   `json:"endDate"`
	OutcomePrices string   `json:"outcomePrices"`
	Outcomes      string   `json:"outcomes"`
	VolumeNum     float64  `json:"volumeNum"`
	Volume        string   `json:"volume"`
	Active        bool     `json:"active"`
	Closed        bool     `json:"closed"`
}

// toSnapshot normalizes a Gamma market into a MarketSnapshot. The second
// return value is false when the market is missing the fields the aggregator
// needs (prices or an end date).
func (m *apiMarket) toSnapshot() (domain.MarketSnapshot, bool) {
	yes, no, ok := m.prices()
	if !ok {
		return domain.MarketSnapshot{}, false
	}

	endTime, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return domain.MarketSnapshot{}, false
	}

	volume := m.VolumeNum
	if volume == 0 && m.Volume != "" {
		if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
			volume = v
		}
	}

	return domain.MarketSnapshot{
		MarketID: Platform + ":" + m.ID,
		Platform: Platform,
		Question: m.Question,
		EndTime:  endTime.Unix(),
		YesPrice: fractionToBps(yes),
		NoPrice:  fractionToBps(no),
		Volume:   volume,
	}, true
}

// prices decodes the outcomePrices string (e.g. `["0.45", "0.55"]`) into
// yes/no price fractions.
func (m *apiMarket) prices() (yes, no float64, ok bool) {
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil || len(raw) < 2 {
		return 0, 0, false
	}

	yes, errYes := strconv.ParseFloat(raw[0], 64)
	no, errNo := strconv.ParseFloat(raw[1], 64)
	if errYes != nil || errNo != nil {
		return 0, 0, false
	}
	return yes, no, true
}

// fractionToBps converts a 0..1 price fraction to integer basis points.
func fractionToBps(f float64) int64 {
	return int64(math.Round(f * 10000))
}
