package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/server/handler"
	"github.com/TemamAb/ainex-sub000/internal/server/middleware"
	"github.com/TemamAb/ainex-sub000/internal/server/ws"
)

const (
	// defaultRateLimit bounds requests per client IP per window.
	defaultRateLimit  = 120
	defaultRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, read authentication is disabled
	OperatorKey string // HMAC secret for operator endpoints; empty disables them
}

// Handlers aggregates the HTTP handlers the server registers. Nil entries
// are skipped, so trimmed modes expose only the routes they can serve.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Risk          *handler.RiskHandler
	Settlements   *handler.SettlementHandler
	Params        *handler.ParamHandler
	Opportunities *handler.OpportunityHandler
	Archives      *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the trading pipeline.
// Read endpoints sit behind the optional static API key; the two operator
// endpoints additionally require an HMAC request signature.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// A nil limiter disables rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	readAuth := middleware.APIKey(cfg.APIKey)
	operator := middleware.OperatorAuth(cfg.OperatorKey)

	read := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, readAuth(fn))
	}

	// Liveness probe, never authenticated.
	if handlers.Health != nil {
		mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		read("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Risk != nil {
		read("GET /api/risk", handlers.Risk.GetRisk)
		mux.Handle("POST /api/risk/breaker/reset", operator(http.HandlerFunc(handlers.Risk.ResetBreaker)))
		mux.Handle("POST /api/risk/halt", operator(http.HandlerFunc(handlers.Risk.Halt)))
	}

	if handlers.Settlements != nil {
		read("GET /api/settlements", handlers.Settlements.ListSettlements)
		read("GET /api/settlements/summary", handlers.Settlements.GetSummary)
	}

	if handlers.Params != nil {
		read("GET /api/params", handlers.Params.GetParams)
		read("GET /api/params/history", handlers.Params.GetHistory)
	}

	if handlers.Opportunities != nil {
		read("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)
	}

	if handlers.Archives != nil {
		read("GET /api/archives", handlers.Archives.ListArchives)
		read("GET /api/archives/download", handlers.Archives.DownloadArchive)
	}

	if wsHub != nil {
		read("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain around the mux; auth is applied per route
	// above so the probe stays reachable.
	var h http.Handler = mux
	if limiter != nil {
		h = middleware.RateLimit(limiter, defaultRateLimit, defaultRateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
