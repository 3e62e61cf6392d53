package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

type stubSource struct {
	name  string
	snaps []domain.MarketSnapshot
	err   error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchSnapshots(_ context.Context) ([]domain.MarketSnapshot, error) {
	return s.snaps, s.err
}

type recordingUpserter struct {
	mu      sync.Mutex
	batches [][]domain.MarketSnapshot
	err     error
}

func (u *recordingUpserter) UpsertSnapshots(_ context.Context, snaps []domain.MarketSnapshot) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.batches = append(u.batches, snaps)
	if u.err != nil {
		return 0, u.err
	}
	return len(snaps), nil
}

func (u *recordingUpserter) lastBatch() []domain.MarketSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.batches) == 0 {
		return nil
	}
	return u.batches[len(u.batches)-1]
}

type recordingReporter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingReporter) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func snap(id, platform string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: id,
		Platform: platform,
		Question: "q",
		EndTime:  time.Now().Add(time.Hour).Unix(),
		YesPrice: 4000,
		NoPrice:  6000,
		Volume:   10_000,
	}
}

func TestRunPassMergesSourcesInOrder(t *testing.T) {
	up := &recordingUpserter{}
	agg := NewAggregator(
		[]Source{
			&stubSource{name: "polymarket", snaps: []domain.MarketSnapshot{snap("a", "polymarket"), snap("b", "polymarket")}},
			&stubSource{name: "kalshi", snaps: []domain.MarketSnapshot{snap("c", "kalshi")}},
		},
		up, nil, time.Minute, slog.New(slog.DiscardHandler),
	)

	applied := agg.RunPass(context.Background())
	assert.Equal(t, 3, applied)

	batch := up.lastBatch()
	require.Len(t, batch, 3)
	// Source declaration order, then each source's own order.
	assert.Equal(t, "a", batch[0].MarketID)
	assert.Equal(t, "b", batch[1].MarketID)
	assert.Equal(t, "c", batch[2].MarketID)
}

func TestRunPassIsolatesFailingSource(t *testing.T) {
	up := &recordingUpserter{}
	reporter := &recordingReporter{}
	agg := NewAggregator(
		[]Source{
			&stubSource{name: "polymarket", err: errors.New("upstream 503")},
			&stubSource{name: "kalshi", snaps: []domain.MarketSnapshot{snap("c", "kalshi")}},
		},
		up, reporter, time.Minute, slog.New(slog.DiscardHandler),
	)

	applied := agg.RunPass(context.Background())
	assert.Equal(t, 1, applied)

	batch := up.lastBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, "c", batch[0].MarketID)

	require.Len(t, reporter.events, 1)
	assert.Equal(t, "source_failed", reporter.events[0])
}

func TestRunPassAllSourcesFailing(t *testing.T) {
	up := &recordingUpserter{}
	agg := NewAggregator(
		[]Source{&stubSource{name: "polymarket", err: errors.New("down")}},
		up, nil, time.Minute, slog.New(slog.DiscardHandler),
	)

	applied := agg.RunPass(context.Background())
	assert.Zero(t, applied)
}

// blockingSource signals each FetchSnapshots entry, then parks until release
// closes or the context ends.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSource) Name() string { return "slow" }

func (s *blockingSource) FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	select {
	case s.entered <- struct{}{}:
	case <-ctx.Done():
		return nil, nil
	}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestSlowPassDoesNotBlockNextTick(t *testing.T) {
	src := &blockingSource{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	up := &recordingUpserter{}
	agg := NewAggregator([]Source{src}, up, nil, 20*time.Millisecond, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg.Start(ctx)
	defer agg.Stop()

	waitEntered := func(label string) {
		select {
		case <-src.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s pass to start", label)
		}
	}

	// The first pass enters the source and parks there. The next tick must
	// still fire a second pass while the first is in flight.
	waitEntered("first")
	waitEntered("second")

	close(src.release)
}

func TestStartStopLifecycle(t *testing.T) {
	up := &recordingUpserter{}
	agg := NewAggregator(nil, up, nil, time.Hour, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, agg.Running())
	agg.Start(ctx)
	assert.True(t, agg.Running())

	// Second Start is a no-op while running.
	agg.Start(ctx)
	assert.True(t, agg.Running())

	agg.Stop()
	assert.False(t, agg.Running())

	// Stop is idempotent.
	agg.Stop()
	assert.False(t, agg.Running())

	// The loop can be restarted after a stop.
	agg.Start(ctx)
	assert.True(t, agg.Running())
	agg.Stop()
}
