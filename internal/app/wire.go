package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/crypmancer/defi-prediction-aggregator/internal/blob/s3"
	"github.com/crypmancer/defi-prediction-aggregator/internal/cache/redis"
	"github.com/crypmancer/defi-prediction-aggregator/internal/config"
	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
	"github.com/crypmancer/defi-prediction-aggregator/internal/notify"
	"github.com/crypmancer/defi-prediction-aggregator/internal/store/memory"
	"github.com/crypmancer/defi-prediction-aggregator/internal/store/postgres"
)

// Dependencies bundles the domain-level collaborators the application modes
// need. Optional members stay nil when their backend is not configured.
type Dependencies struct {
	MarketStore domain.MarketStore
	VaultStore  domain.VaultStore

	MarketCache domain.MarketCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	BlobWriter domain.BlobWriter

	Notifier *notify.Notifier
}

// Wire constructs concrete implementations from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Stores: PostgreSQL when configured, in-memory otherwise. The in-memory
	// backend keeps single-node deployments free of external services.
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.VaultStore = postgres.NewVaultStore(pool)
	} else {
		logger.InfoContext(ctx, "postgres not configured, using in-memory stores")
		deps.MarketStore = memory.NewMarketStore()
		deps.VaultStore = memory.NewVaultStore()
	}

	// Redis: market cache, signal bus and API rate limiting. All three stay
	// disabled when no address is configured.
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		logger.InfoContext(ctx, "redis not configured, cache and event bus disabled")
	}

	// S3: snapshot archival target.
	if cfg.Pipeline.ArchiveEnabled && cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
