package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/agreements/internal/agreement"
	"github.com/roach88/agreements/internal/config"
	"github.com/roach88/agreements/internal/engine"
	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/pool"
	"github.com/roach88/agreements/internal/store"
)

// app is one wired engine over a store and a gateway.
type app struct {
	cfg     config.Config
	store   *store.Store
	ledger  *ledger.Ledger
	engine  *engine.Engine
	metrics *metrics.Collector
}

// newApp wires ledger, pool, agreement service and engine, and makes sure
// the engine account exists.
func newApp(ctx context.Context, cfg config.Config, st *store.Store, gw gateway.Gateway, clock ir.Clock) (*app, error) {
	collector := metrics.NewCollector("")
	logger := slog.Default()

	l := ledger.New(st, cfg.Ledger(),
		ledger.WithGreeter(engine.NewWelcomer(gw, collector)),
		ledger.WithLogger(logger),
	)
	p := pool.New(st, l, cfg.Pool(), pool.WithClock(clock), pool.WithLogger(logger))
	svc := agreement.New(st, l, p, agreement.WithLogger(logger))

	if _, _, err := l.EnsureAccount(ctx, cfg.EngineUser()); err != nil {
		return nil, fmt.Errorf("create engine account: %w", err)
	}

	e := engine.New(st, l, p, svc, gw,
		engine.WithMetrics(collector),
		engine.WithLogger(logger),
	)
	return &app{cfg: cfg, store: st, ledger: l, engine: e, metrics: collector}, nil
}

// loadConfig loads the config file and applies a --db override.
func loadConfig(path, database string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if database != "" {
		cfg.Database = database
	}
	return cfg, nil
}

// openStore opens the database, mapping failures to a command error.
func openStore(path string) (*store.Store, error) {
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// setupLogging routes slog to stderr, at debug level when verbose.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
