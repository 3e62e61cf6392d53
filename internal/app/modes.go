package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
	"github.com/crypmancer/defi-prediction-aggregator/internal/oracle/openai"
	"github.com/crypmancer/defi-prediction-aggregator/internal/pipeline"
	"github.com/crypmancer/defi-prediction-aggregator/internal/platform/kalshi"
	"github.com/crypmancer/defi-prediction-aggregator/internal/platform/polymarket"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server/handler"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server/ws"
	"github.com/crypmancer/defi-prediction-aggregator/internal/service"
)

// services bundles the three core engine services built on top of the wired
// dependencies.
type services struct {
	markets *service.MarketService
	signals *service.SignalService
	vaults  *service.VaultService
}

// buildServices assembles the service layer and seeds the vault ledger from
// configuration.
func (a *App) buildServices(ctx context.Context, deps *Dependencies) (*services, error) {
	var notifier service.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.SignalBus, notifier, a.logger,
	)

	var oracle service.Oracle
	if a.cfg.Oracle.APIKey != "" {
		oracle = openai.NewClient(openai.Config{
			BaseURL: a.cfg.Oracle.BaseURL,
			APIKey:  a.cfg.Oracle.APIKey,
			Model:   a.cfg.Oracle.Model,
			Timeout: a.cfg.Oracle.Timeout.Duration,
		})
	} else {
		a.logger.InfoContext(ctx, "oracle not configured, using heuristic analysis only")
	}
	signalSvc := service.NewSignalService(marketSvc, oracle, a.cfg.Signal.DefaultMaxBetSize, a.logger)

	vaultSvc := service.NewVaultService(deps.VaultStore, deps.SignalBus, a.logger)
	infos := make([]domain.VaultInfo, 0, len(a.cfg.Vaults))
	for i, vc := range a.cfg.Vaults {
		info, err := vc.ToVaultInfo()
		if err != nil {
			return nil, fmt.Errorf("app: vaults[%d]: %w", i, err)
		}
		infos = append(infos, info)
	}
	if err := vaultSvc.Bootstrap(ctx, infos); err != nil {
		return nil, fmt.Errorf("app: bootstrap vaults: %w", err)
	}

	return &services{markets: marketSvc, signals: signalSvc, vaults: vaultSvc}, nil
}

// buildAggregator assembles the source clients and the aggregation loop.
func (a *App) buildAggregator(svcs *services, deps *Dependencies) *pipeline.Aggregator {
	var sources []pipeline.Source
	if a.cfg.Sources.PolymarketHost != "" {
		sources = append(sources, polymarket.NewClient(a.cfg.Sources.PolymarketHost, a.cfg.Sources.PageSize))
	}
	if a.cfg.Sources.KalshiHost != "" {
		sources = append(sources, kalshi.NewClient(a.cfg.Sources.KalshiHost, a.cfg.Sources.PageSize))
	}

	var reporter pipeline.SourceFailureReporter
	if deps.Notifier != nil {
		reporter = deps.Notifier
	}

	return pipeline.NewAggregator(
		sources, svcs.markets, reporter, a.cfg.Pipeline.Interval.Duration, a.logger,
	)
}

// FullMode runs everything: aggregation loop, snapshot archiver and the HTTP
// server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	agg := a.buildAggregator(svcs, deps)
	if !a.cfg.Pipeline.Enabled {
		a.logger.WarnContext(ctx, "pipeline.enabled is false, but full mode runs the pipeline")
	}
	agg.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		agg.Stop()
		return ctx.Err()
	})

	a.startArchiver(ctx, g, svcs, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, svcs, deps, agg)
	}

	return g.Wait()
}

// ServeMode runs the HTTP API only; no aggregation loop. Useful when another
// instance owns the pipeline.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: serve mode requires server.enabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, svcs, deps, nil)
	return g.Wait()
}

// AggregateMode runs the aggregation loop and archiver without the HTTP
// server.
func (a *App) AggregateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting aggregate mode")

	svcs, err := a.buildServices(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	agg := a.buildAggregator(svcs, deps)
	agg.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		agg.Stop()
		return ctx.Err()
	})

	a.startArchiver(ctx, g, svcs, deps)

	return g.Wait()
}

// startArchiver adds the snapshot archiver goroutine when archival is
// configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, svcs *services, deps *Dependencies) {
	if !a.cfg.Pipeline.ArchiveEnabled || deps.BlobWriter == nil {
		return
	}
	archiver := pipeline.NewArchiver(
		svcs.markets,
		deps.BlobWriter,
		a.cfg.Pipeline.ArchivePrefix,
		a.cfg.Pipeline.ArchiveInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		err := archiver.RunLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines. The
// aggregator is optional; when present the manual trigger endpoint is
// registered.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	svcs *services,
	deps *Dependencies,
	agg *pipeline.Aggregator,
) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(time.Now().UTC()),
		Markets:  handler.NewMarketHandler(svcs.markets, a.logger),
		Analysis: handler.NewAnalysisHandler(svcs.signals, a.logger),
		Vaults:   handler.NewVaultHandler(svcs.vaults, a.logger),
	}
	if agg != nil {
		handlers.Pipeline = handler.NewPipelineHandler(agg, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
