package kalshi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

const marketsListing = `{
	"markets": [
		{
			"ticker": "FED-25SEP",
			"title": "Fed cuts rates at the September meeting?",
			"status": "open",
			"yes_bid": 44,
			"yes_ask": 46,
			"no_bid": 54,
			"no_ask": 56,
			"volume": 120000,
			"close_time": "2026-09-18T00:00:00Z"
		},
		{
			"ticker": "ONESIDED",
			"title": "Only an ask quote",
			"status": "open",
			"yes_bid": 0,
			"yes_ask": 30,
			"no_bid": 70,
			"no_ask": 0,
			"volume": 500,
			"close_time": "2026-09-18T00:00:00Z"
		},
		{
			"ticker": "NOQUOTES",
			"title": "No quotes at all",
			"status": "open",
			"yes_bid": 0,
			"yes_ask": 0,
			"no_bid": 0,
			"no_ask": 0,
			"volume": 0,
			"close_time": "2026-09-18T00:00:00Z"
		},
		{
			"ticker": "BADTIME",
			"title": "Unparseable close time",
			"status": "open",
			"yes_bid": 40,
			"yes_ask": 42,
			"no_bid": 58,
			"no_ask": 60,
			"volume": 10,
			"close_time": "soon"
		}
	],
	"cursor": ""
}`

func TestFetchSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "open", q.Get("status"))
		w.Write([]byte(marketsListing))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 25)
	snaps, err := client.FetchSnapshots(context.Background())
	require.NoError(t, err)
	// Quoteless and unparseable markets are skipped.
	require.Len(t, snaps, 2)

	first := snaps[0]
	assert.Equal(t, "Kalshi:FED-25SEP", first.MarketID)
	assert.Equal(t, Platform, first.Platform)
	assert.Equal(t, int64(4500), first.YesPrice)
	assert.Equal(t, int64(5500), first.NoPrice)
	assert.Equal(t, 120000.0, first.Volume)

	// A one-sided book uses the quoted side directly.
	second := snaps[1]
	assert.Equal(t, int64(3000), second.YesPrice)
	assert.Equal(t, int64(7000), second.NoPrice)
}

func TestFetchSnapshotsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10)
	_, err := client.FetchSnapshots(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestCentsMidToBps(t *testing.T) {
	assert.Equal(t, int64(4500), centsMidToBps(44, 46))
	assert.Equal(t, int64(3000), centsMidToBps(0, 30))
	assert.Equal(t, int64(7000), centsMidToBps(70, 0))
	assert.Zero(t, centsMidToBps(0, 0))
}
