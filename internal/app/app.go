// Package app provides the top-level application lifecycle for the governance
// ledger service. It wires the ledger gateway, the market directory, optional
// infrastructure (Postgres, Redis, S3, the local journal) and notifications,
// then runs the configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/govledger/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	request ActionRequest
	out     io.Writer
	closers []func()
}

// Option customises an App.
type Option func(*App)

// WithActionRequest sets the parameters used by the action modes.
func WithActionRequest(req ActionRequest) Option {
	return func(a *App) { a.request = req }
}

// WithOutput sets where status and action reports are written. Defaults to
// stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run wires all dependencies, runs the configured mode and blocks until it
// finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case config.ModeWatch:
		return a.WatchMode(ctx, deps)
	case config.ModeStatus:
		return a.StatusMode(ctx, deps)
	case config.ModeVote, config.ModeDownvote, config.ModeLock, config.ModeClaim, config.ModeCreatePair:
		return a.ActionMode(ctx, deps, mode)
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
