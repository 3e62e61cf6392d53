package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market lookups in front of a MarketStore.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, marketID string) (Market, error)
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter provides distributed request rate limiting keyed by caller.
type RateLimiter interface {
	// Allow reports whether one more request under key fits inside the
	// window, counting the request when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of engine events (market updates,
// resolutions, analysis results) to interested consumers such as the
// WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads that is closed when ctx is
	// cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
