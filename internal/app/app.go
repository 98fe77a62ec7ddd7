// Package app provides the top-level lifecycle for the ConwayBets sync
// daemon. It wires the client, stores, cache and archiver together and runs
// the configured operating mode until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GauravKarakoti/ConwayBets/internal/config"
	"github.com/GauravKarakoti/ConwayBets/internal/connection"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
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

// staticWallet satisfies the connection's wallet surface with a fixed
// address from configuration. Key material never enters this process.
type staticWallet struct {
	addr string
}

func (w staticWallet) Address() string { return w.addr }

var _ connection.Wallet = staticWallet{}

// Run wires dependencies, connects, starts the configured mode, and blocks
// until the context is cancelled. Registered cleanups run on return.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	if err := deps.Client.Connect(ctx, staticWallet{addr: a.cfg.Wallet.Address}); err != nil {
		return fmt.Errorf("app: connect: %w", err)
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "watch":
		return a.WatchMode(ctx, deps)
	case "mirror":
		return a.MirrorMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
