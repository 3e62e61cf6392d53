// Package kalshi implements a market snapshot source backed by the Kalshi
// public trade API.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// Platform is the source identifier stamped onto every snapshot.
const Platform = "Kalshi"

// Client is the REST client for the Kalshi markets API.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a new Kalshi API client.
//
// baseURL is the trade API root, e.g.
// "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL string, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:  baseURL,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return Platform
}

// FetchSnapshots returns one page of open markets normalized into snapshots.
func (c *Client) FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("status", "open")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("kalshi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kalshi: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kalshi: %w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read body: %w", err)
	}

	var page marketsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	snaps := make([]domain.MarketSnapshot, 0, len(page.Markets))
	for i := range page.Markets {
		snap, ok := page.Markets[i].toSnapshot()
		if !ok {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// marketsPage is the paginated response envelope of GET /markets.
type marketsPage struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// apiMarket is a market as returned by the Kalshi REST API. Prices are
// quoted in cents (1-99).
type apiMarket struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	YesBid    int64  `json:"yes_bid"`
	YesAsk    int64  `json:"yes_ask"`
	NoBid     int64  `json:"no_bid"`
	NoAsk     int64  `json:"no_ask"`
	Volume    int64  `json:"volume"`
	CloseTime string `json:"close_time"`
}

// toSnapshot normalizes a Kalshi market into a MarketSnapshot, converting
// cent mid-prices into basis points.
func (m *apiMarket) toSnapshot() (domain.MarketSnapshot, bool) {
	closeTime, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return domain.MarketSnapshot{}, false
	}

	yes := centsMidToBps(m.YesBid, m.YesAsk)
	no := centsMidToBps(m.NoBid, m.NoAsk)
	if yes == 0 && no == 0 {
		return domain.MarketSnapshot{}, false
	}

	return domain.MarketSnapshot{
		MarketID: Platform + ":" + m.Ticker,
		Platform: Platform,
		Question: m.Title,
		EndTime:  closeTime.Unix(),
		YesPrice: yes,
		NoPrice:  no,
		Volume:   float64(m.Volume),
	}, true
}

// centsMidToBps converts a bid/ask pair in cents to the mid price in basis
// points. One cent is 100 bps.
func centsMidToBps(bid, ask int64) int64 {
	if bid == 0 && ask == 0 {
		return 0
	}
	if bid == 0 {
		return ask * 100
	}
	if ask == 0 {
		return bid * 100
	}
	return (bid + ask) * 50
}
