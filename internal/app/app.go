// Package app provides the top-level application lifecycle for the arbitrage
// pipeline. It wires together all dependencies (stores, caches, blob storage,
// chain clients, pipeline stages, and notifications) and starts the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TemamAb/ainex-sub000/internal/config"
	"github.com/TemamAb/ainex-sub000/internal/notify"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var runErr error
	switch strings.ToLower(a.cfg.Mode) {
	case "pipeline":
		runErr = a.PipelineMode(ctx, deps)
	case "scan":
		runErr = a.ScanMode(ctx, deps)
	case "monitor":
		runErr = a.MonitorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	// A mode that died on its own warrants an operator page. Cancellation is
	// the normal shutdown path.
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		alertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Notifier.Notify(alertCtx, notify.EventFatal, "Pipeline down", runErr.Error()); err != nil {
			a.logger.Warn("fatal alert failed", slog.String("error", err.Error()))
		}
	}
	return runErr
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
