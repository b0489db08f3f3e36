// Package app provides the top-level application lifecycle for the funding
// bot. It wires together all dependencies (venue gateways, stores, caches,
// notifications) and starts the appropriate goroutines based on the
// configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/fundingbot/internal/config"
	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	gateways map[string]domain.VenueGateway
	closers  []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// WithGateways supplies venue gateway implementations keyed by venue name.
// Venue API adapters live outside this module; every non-paper mode requires
// at least two gateways matching enabled venues in the configuration.
func (a *App) WithGateways(gateways map[string]domain.VenueGateway) *App {
	a.gateways = gateways
	return a
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

	mode := strings.ToLower(a.cfg.Mode)

	venues, err := a.buildGateways(mode, deps)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	switch mode {
	case "scan":
		return a.ScanMode(ctx, deps, venues)
	case "trade":
		return a.TradeMode(ctx, deps, venues)
	case "monitor":
		return a.MonitorMode(ctx, deps, venues)
	case "paper":
		return a.PaperMode(ctx, deps, venues)
	case "full":
		return a.FullMode(ctx, deps, venues)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
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
