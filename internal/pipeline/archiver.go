package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// MarketLister reads the full market registry for archival.
type MarketLister interface {
	List(ctx context.Context) ([]domain.Market, error)
}

// Archiver periodically dumps the full market registry to object storage as
// a timestamped JSON document.
type Archiver struct {
	markets  MarketLister
	blob     domain.BlobWriter
	prefix   string
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver writing under the given key prefix.
func NewArchiver(markets MarketLister, blob domain.BlobWriter, prefix string, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		markets:  markets,
		blob:     blob,
		prefix:   prefix,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	markets, err := a.markets.List(ctx)
	if err != nil {
		return fmt.Errorf("archiver: list markets: %w", err)
	}

	payload, err := json.Marshal(struct {
		ArchivedAt time.Time       `json:"archivedAt"`
		Count      int             `json:"count"`
		Markets    []domain.Market `json:"markets"`
	}{
		ArchivedAt: time.Now().UTC(),
		Count:      len(markets),
		Markets:    markets,
	})
	if err != nil {
		return fmt.Errorf("archiver: marshal markets: %w", err)
	}

	now := time.Now().UTC()
	path := fmt.Sprintf("%s/%s/markets-%s.json",
		a.prefix, now.Format("2006/01/02"), now.Format("150405"))

	if err := a.blob.Put(ctx, path, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("archiver: upload %s: %w", path, err)
	}

	a.logger.InfoContext(ctx, "archived market snapshot",
		slog.String("path", path),
		slog.Int("markets", len(markets)),
	)
	return nil
}

// RunLoop runs the archiver on a repeating interval until the context is
// cancelled.
func (a *Archiver) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
