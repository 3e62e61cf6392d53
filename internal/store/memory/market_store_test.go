package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

func snapshot(id string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: id,
		Platform: "Polymarket",
		Question: "Will it happen?",
		EndTime:  time.Now().Add(24 * time.Hour).Unix(),
		YesPrice: 4500,
		NoPrice:  5500,
		Volume:   250_000,
	}
}

func TestUpsertPreservesEngineFields(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()

	require.NoError(t, store.Upsert(ctx, snapshot("Polymarket:1")))
	require.NoError(t, store.Resolve(ctx, "Polymarket:1", true))
	require.NoError(t, store.SetConfidence(ctx, "Polymarket:1", 6200))

	// A later snapshot must refresh prices without clobbering resolution
	// state or the cached confidence.
	snap := snapshot("Polymarket:1")
	snap.YesPrice = 7000
	snap.NoPrice = 3000
	require.NoError(t, store.Upsert(ctx, snap))

	m, err := store.Get(ctx, "Polymarket:1")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), m.YesPrice)
	assert.True(t, m.Resolved)
	require.NotNil(t, m.Outcome)
	assert.True(t, *m.Outcome)
	require.NotNil(t, m.AIConfidence)
	assert.Equal(t, int64(6200), *m.AIConfidence)
}

func TestUpsertLastUpdatedNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()

	require.NoError(t, store.Upsert(ctx, snapshot("Polymarket:1")))
	first, err := store.Get(ctx, "Polymarket:1")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, snapshot("Polymarket:1")))
	second, err := store.Get(ctx, "Polymarket:1")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, second.LastUpdated, first.LastUpdated)
}

func TestGetUnknownMarket(t *testing.T) {
	store := NewMarketStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveIsOneWay(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()
	require.NoError(t, store.Upsert(ctx, snapshot("Polymarket:1")))

	require.NoError(t, store.Resolve(ctx, "Polymarket:1", true))

	// A second resolve must fail and leave the first outcome intact.
	err := store.Resolve(ctx, "Polymarket:1", false)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	m, err := store.Get(ctx, "Polymarket:1")
	require.NoError(t, err)
	require.NotNil(t, m.Outcome)
	assert.True(t, *m.Outcome)

	err = store.Resolve(ctx, "missing", true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListActiveBoundaries(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()

	// One second either side of now: strictly-future stays active,
	// endTime == now and one second past do not.
	now := time.Now().Unix()

	future := snapshot("future")
	future.EndTime = now + 1
	require.NoError(t, store.Upsert(ctx, future))

	endsNow := snapshot("endsNow")
	endsNow.EndTime = now
	require.NoError(t, store.Upsert(ctx, endsNow))

	past := snapshot("past")
	past.EndTime = now - 1
	require.NoError(t, store.Upsert(ctx, past))

	resolved := snapshot("resolved")
	resolved.EndTime = time.Now().Add(time.Hour).Unix()
	require.NoError(t, store.Upsert(ctx, resolved))
	require.NoError(t, store.Resolve(ctx, "resolved", false))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "future", active[0].MarketID)
}

func TestListByPlatformCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()

	a := snapshot("Polymarket:1")
	require.NoError(t, store.Upsert(ctx, a))

	b := snapshot("Kalshi:FED-25")
	b.Platform = "Kalshi"
	require.NoError(t, store.Upsert(ctx, b))

	got, err := store.ListByPlatform(ctx, "polymarket")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Polymarket:1", got[0].MarketID)

	none, err := store.ListByPlatform(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSetConfidenceOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMarketStore()
	require.NoError(t, store.Upsert(ctx, snapshot("Polymarket:1")))

	require.NoError(t, store.SetConfidence(ctx, "Polymarket:1", 4000))
	require.NoError(t, store.SetConfidence(ctx, "Polymarket:1", 7100))

	m, err := store.Get(ctx, "Polymarket:1")
	require.NoError(t, err)
	require.NotNil(t, m.AIConfidence)
	assert.Equal(t, int64(7100), *m.AIConfidence)

	err = store.SetConfidence(ctx, "missing", 5000)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
