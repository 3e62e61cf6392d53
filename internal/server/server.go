// Package server hosts the HTTP and WebSocket API in front of the engine's
// services.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server/handler"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server/middleware"
	"github.com/crypmancer/defi-prediction-aggregator/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards mutating endpoints; empty disables authentication.
	APIKey string
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit int
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Analysis *handler.AnalysisHandler
	Vaults   *handler.VaultHandler
	Pipeline *handler.PipelineHandler
}

// Server is the headless HTTP + WebSocket API for the aggregation engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The
// limiter and wsHub are optional; nil disables the concern.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness, outside auth.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market registry.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/active", handlers.Markets.ListActive)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)

	// Signal engine.
	mux.HandleFunc("GET /api/analysis/{id}", handlers.Analysis.Analyze)
	mux.HandleFunc("GET /api/analysis/{id}/confidence", handlers.Analysis.GetConfidence)
	mux.HandleFunc("POST /api/analysis/{id}/recommend", handlers.Analysis.RecommendBet)

	// Vault ledger.
	mux.HandleFunc("GET /api/vaults", handlers.Vaults.ListVaults)
	mux.HandleFunc("GET /api/vaults/{address}", handlers.Vaults.GetVault)
	mux.HandleFunc("GET /api/vaults/{address}/balance/{principal}", handlers.Vaults.GetBalance)
	mux.HandleFunc("POST /api/vaults/{address}/deposit", handlers.Vaults.Deposit)
	mux.HandleFunc("POST /api/vaults/{address}/withdraw", handlers.Vaults.Withdraw)

	// Manual pipeline trigger.
	if handlers.Pipeline != nil {
		mux.HandleFunc("POST /api/pipeline/trigger", handlers.Pipeline.TriggerPass)
	}

	// Event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
