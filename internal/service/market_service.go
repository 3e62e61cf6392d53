package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

// Bus channels for market lifecycle events.
const (
	ChannelMarkets     = "markets"
	ChannelResolutions = "resolutions"
	ChannelAnalysis    = "analysis"
	ChannelVaults      = "vaults"
)

// Notifier delivers operator notifications for selected event types. It is
// declared locally so the services do not depend on the concrete notify
// implementation.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// MarketService wraps the market store with caching, event publication and
// operator notifications. The cache, bus and notifier are all optional; a nil
// collaborator disables that concern.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
	}
}

// UpsertSnapshots applies a batch of snapshots sequentially, in slice order,
// so two snapshots sharing a marketId resolve last-write-wins. Cache entries
// for touched markets are invalidated and an update event is published per
// snapshot. Returns the number of snapshots applied.
func (s *MarketService) UpsertSnapshots(ctx context.Context, snaps []domain.MarketSnapshot) (int, error) {
	applied := 0
	for _, snap := range snaps {
		if err := s.markets.Upsert(ctx, snap); err != nil {
			return applied, fmt.Errorf("market_service: upsert %q: %w", snap.MarketID, err)
		}
		applied++

		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, snap.MarketID); err != nil {
				s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
					slog.String("market_id", snap.MarketID),
					slog.String("error", err.Error()),
				)
				// Non-fatal: the cache entry expires on its own.
			}
		}

		s.publish(ctx, ChannelMarkets, snap)
	}

	if applied > 0 {
		s.logger.InfoContext(ctx, "market_service: upserted snapshots",
			slog.Int("count", applied),
		)
	}
	return applied, nil
}

// Get retrieves a market by ID, checking the cache first and falling back to
// the store on a miss.
func (s *MarketService) Get(ctx context.Context, marketID string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, marketID); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", marketID, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return m, nil
}

// List returns all tracked markets.
func (s *MarketService) List(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// ListByPlatform returns the markets belonging to one platform.
func (s *MarketService) ListByPlatform(ctx context.Context, platform string) ([]domain.Market, error) {
	markets, err := s.markets.ListByPlatform(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by platform %q: %w", platform, err)
	}
	return markets, nil
}

// ListActive returns unresolved markets that have not yet ended.
func (s *MarketService) ListActive(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Resolve marks a market resolved, invalidates its cache entry, publishes a
// resolution event and notifies operators. Store errors (ErrNotFound,
// ErrAlreadyResolved) pass through for the route layer to translate.
func (s *MarketService) Resolve(ctx context.Context, marketID string, outcome bool) error {
	if err := s.markets.Resolve(ctx, marketID, outcome); err != nil {
		return fmt.Errorf("market_service: resolve %q: %w", marketID, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publish(ctx, ChannelResolutions, map[string]any{
		"marketId": marketID,
		"outcome":  outcome,
	})

	if s.notifier != nil {
		msg := fmt.Sprintf("Market %s resolved, outcome: %t", marketID, outcome)
		if err := s.notifier.Notify(ctx, "market_resolved", "Market resolved", msg); err != nil {
			s.logger.WarnContext(ctx, "market_service: notify failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", marketID),
		slog.Bool("outcome", outcome),
	)
	return nil
}

// SetConfidence caches a derived confidence score onto the market.
func (s *MarketService) SetConfidence(ctx context.Context, marketID string, confidence int64) error {
	if err := s.markets.SetConfidence(ctx, marketID, confidence); err != nil {
		return fmt.Errorf("market_service: set confidence %q: %w", marketID, err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// publish marshals v and publishes it to the bus, logging failures. Events
// are best-effort and never fail the calling operation.
func (s *MarketService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
