// Package polymarket implements a market snapshot source backed by the
// Polymarket Gamma API.
package polymarket

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
const Platform = "Polymarket"

// Client is the REST client for the Polymarket Gamma API, normalizing its
// market listings into aggregation snapshots.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
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
// Markets that cannot be normalized (missing prices or end date) are skipped.
func (c *Client) FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("active", "true")
	params.Set("closed", "false")

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket: fetch markets: %w", err)
	}

	var apiMarkets []apiMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket: decode markets: %w", err)
	}

	snaps := make([]domain.MarketSnapshot, 0, len(apiMarkets))
	for i := range apiMarkets {
		snap, ok := apiMarkets[i].toSnapshot()
		if !ok {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// doGet performs a GET request against the Gamma API and returns the raw body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
