package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

const gammaListing = `[
	{
		"id": "512329",
		"question": "Will the Fed cut rates in September?",
		"slug": "fed-cut-september",
		"endDate": "2026-09-18T00:00:00Z",
		"outcomePrices": "[\"0.45\", \"0.55\"]",
		"outcomes": "[\"Yes\", \"No\"]",
		"volumeNum": 250000,
		"active": true,
		"closed": false
	},
	{
		"id": "512330",
		"question": "Market with no prices",
		"slug": "broken",
		"endDate": "2026-09-18T00:00:00Z",
		"outcomePrices": "",
		"outcomes": "",
		"volumeNum": 100,
		"active": true,
		"closed": false
	},
	{
		"id": "512331",
		"question": "String volume fallback",
		"slug": "string-volume",
		"endDate": "2026-10-01T12:00:00Z",
		"outcomePrices": "[\"0.701\", \"0.299\"]",
		"outcomes": "[\"Yes\", \"No\"]",
		"volume": "42000.5",
		"active": true,
		"closed": false
	}
]`

func TestFetchSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "true", q.Get("active"))
		assert.Equal(t, "false", q.Get("closed"))
		w.Write([]byte(gammaListing))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 50)
	snaps, err := client.FetchSnapshots(context.Background())
	require.NoError(t, err)
	// The priceless market is skipped, not an error.
	require.Len(t, snaps, 2)

	first := snaps[0]
	assert.Equal(t, "Polymarket:512329", first.MarketID)
	assert.Equal(t, Platform, first.Platform)
	assert.Equal(t, "Will the Fed cut rates in September?", first.Question)
	assert.Equal(t, int64(4500), first.YesPrice)
	assert.Equal(t, int64(5500), first.NoPrice)
	assert.Equal(t, 250000.0, first.Volume)

	second := snaps[1]
	assert.Equal(t, int64(7010), second.YesPrice)
	assert.Equal(t, int64(2990), second.NoPrice)
	assert.Equal(t, 42000.5, second.Volume)
}

func TestFetchSnapshotsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10)
	_, err := client.FetchSnapshots(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestFetchSnapshotsBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 10)
	_, err := client.FetchSnapshots(context.Background())
	assert.Error(t, err)
}
