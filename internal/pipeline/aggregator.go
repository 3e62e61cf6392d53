// Package pipeline runs the periodic multi-source market aggregation and the
// cold-storage snapshot archiver.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// Source is one external market platform the aggregator pulls from. Each
// source is independently fallible; the aggregator never lets one source's
// failure abort a pass.
type Source interface {
	Name() string
	FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error)
}

// MarketUpserter applies a batch of snapshots to the market registry.
type MarketUpserter interface {
	UpsertSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) (int, error)
}

// SourceFailureReporter is notified when a source fails during a pass. It is
// optional; a nil reporter disables failure notifications.
type SourceFailureReporter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Aggregator pulls snapshots from all configured sources on a fixed
// interval and merges them into the market registry: parallel fetch,
// sequential merge. Ticks are fire-and-forget, so a slow pass never delays
// the next timer arm and passes may overlap.
type Aggregator struct {
	sources  []Source
	markets  MarketUpserter
	reporter SourceFailureReporter
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewAggregator creates an Aggregator. reporter may be nil.
func NewAggregator(
	sources []Source,
	markets MarketUpserter,
	reporter SourceFailureReporter,
	interval time.Duration,
	logger *slog.Logger,
) *Aggregator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Aggregator{
		sources:  sources,
		markets:  markets,
		reporter: reporter,
		interval: interval,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// Start launches the aggregation loop: one pass immediately, then one per
// interval until Stop is called or ctx is cancelled. Calling Start while the
// aggregator is already running is a warned no-op.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		a.logger.WarnContext(ctx, "aggregator already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true

	go a.loop(runCtx)

	a.logger.InfoContext(ctx, "aggregator started",
		slog.Duration("interval", a.interval),
		slog.Int("sources", len(a.sources)),
	)
}

// Stop prevents future ticks from starting. A pass already in flight is not
// interrupted beyond context cancellation of its fetches. Stop is idempotent.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.cancel()
	a.cancel = nil
	a.running = false
	a.logger.Info("aggregator stopped")
}

// Running reports whether the aggregation loop is active.
func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// loop fires passes without awaiting them; a slow pass may overlap the next
// tick.
func (a *Aggregator) loop(ctx context.Context) {
	go a.RunPass(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go a.RunPass(ctx)
		}
	}
}

// RunPass executes one aggregation pass: fetch from every source
// concurrently, flatten the successful results in source-declaration order,
// and upsert them sequentially. A failing source is logged and reported; it
// never fails the pass. Returns the number of snapshots applied.
func (a *Aggregator) RunPass(ctx context.Context) int {
	start := time.Now()
	results := make([][]domain.MarketSnapshot, len(a.sources))

	g, fetchCtx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		g.Go(func() error {
			snaps, err := src.FetchSnapshots(fetchCtx)
			if err != nil {
				a.logger.ErrorContext(ctx, "source fetch failed",
					slog.String("source", src.Name()),
					slog.String("error", err.Error()),
				)
				a.reportFailure(ctx, src.Name(), err)
				return nil // isolate: other sources keep going
			}
			results[i] = snaps
			return nil
		})
	}
	_ = g.Wait()

	// Flatten in source order so last-write-wins within a pass is
	// deterministic for snapshots sharing a marketId.
	var all []domain.MarketSnapshot
	for _, snaps := range results {
		all = append(all, snaps...)
	}

	applied, err := a.markets.UpsertSnapshots(ctx, all)
	if err != nil {
		a.logger.ErrorContext(ctx, "snapshot merge failed",
			slog.Int("applied", applied),
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "aggregation pass complete",
		slog.Int("snapshots", applied),
		slog.Int("sources", len(a.sources)),
		slog.Duration("duration", time.Since(start)),
	)
	return applied
}

func (a *Aggregator) reportFailure(ctx context.Context, source string, err error) {
	if a.reporter == nil {
		return
	}
	msg := "Source " + source + " failed: " + err.Error()
	if nerr := a.reporter.Notify(ctx, "source_failed", "Aggregation source failure", msg); nerr != nil {
		a.logger.WarnContext(ctx, "failure report not delivered",
			slog.String("source", source),
			slog.String("error", nerr.Error()),
		)
	}
}
