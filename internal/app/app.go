// Package app assembles the engine handles and backends shared by every
// session of a querypad process.
package app

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/querypad/internal/adapter"
	"github.com/leapstack-labs/querypad/internal/engine"
	"github.com/leapstack-labs/querypad/internal/metrics"
	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/scripting"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/structured"
	"golang.org/x/sync/errgroup"
)

// Engine names used in logs and metrics.
const (
	EngineDuckDB   = "duckdb"
	EngineStarlark = "starlark"
)

// Config selects engine settings.
type Config struct {
	// DatabasePath is the DuckDB database. Empty means in-memory.
	DatabasePath string
	Threads      int
	Extensions   []string
	MaxRows      int
	TempDir      string

	ScriptsDir string
	MaxSteps   uint64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// App owns the process-wide engines.
type App struct {
	DuckDB   *engine.Handle[adapter.Engine]
	Starlark *engine.Handle[*scripting.Runtime]

	Structured *structured.Backend
	Scripting  *scripting.Backend
	Metrics    *metrics.Metrics

	logger *slog.Logger
}

// New builds the handles without bootstrapping anything.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var observer engine.BootstrapObserver
	if cfg.Metrics != nil {
		observer = cfg.Metrics.ObserveBootstrap
	}

	duck := engine.NewHandle(EngineDuckDB,
		func(ctx context.Context) (adapter.Engine, error) {
			db := adapter.NewDuckDB(logger)
			if err := db.Connect(ctx, adapter.Config{
				Path:       cfg.DatabasePath,
				Threads:    cfg.Threads,
				Extensions: cfg.Extensions,
			}); err != nil {
				return nil, err
			}
			return db, nil
		},
		engine.WithLogger[adapter.Engine](logger),
		engine.WithObserver[adapter.Engine](observer),
		engine.WithCloser(func(e adapter.Engine) error { return e.Close() }),
	)

	star := engine.NewHandle(EngineStarlark,
		func(ctx context.Context) (*scripting.Runtime, error) {
			return scripting.Bootstrap(ctx, scripting.Options{
				ScriptsDir: cfg.ScriptsDir,
				MaxSteps:   cfg.MaxSteps,
				Logger:     logger,
			})
		},
		engine.WithLogger[*scripting.Runtime](logger),
		engine.WithObserver[*scripting.Runtime](observer),
	)

	return &App{
		DuckDB:   duck,
		Starlark: star,
		Structured: structured.NewBackend(duck, structured.Options{
			MaxRows: cfg.MaxRows,
			TempDir: cfg.TempDir,
			Logger:  logger,
		}),
		Scripting: scripting.NewBackend(star, logger),
		Metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// NewSession creates a session bound to the shared backends. Backend and
// observer fields of cfg are overwritten.
func (a *App) NewSession(cfg session.Config) *session.Session {
	cfg.Structured = a.Structured
	cfg.Scripting = a.Scripting
	if cfg.Logger == nil {
		cfg.Logger = a.logger
	}
	if a.Metrics != nil {
		cfg.Observer = a.Metrics.ObserveRun
	}
	return session.New(cfg)
}

// Warmup bootstraps the engines for the given modes concurrently so the
// first run does not pay for it.
func (a *App) Warmup(ctx context.Context, modes ...query.Mode) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range modes {
		switch m {
		case query.ModeStructured:
			g.Go(func() error {
				_, err := a.DuckDB.Acquire(ctx)
				return err
			})
		case query.ModeScripting:
			g.Go(func() error {
				_, err := a.Starlark.Acquire(ctx)
				return err
			})
		}
	}
	return g.Wait()
}

// Close releases the engines. Only meaningful at process exit.
func (a *App) Close() error {
	if err := a.Starlark.Close(); err != nil {
		a.logger.Warn("failed to close engine", slog.String("engine", EngineStarlark), slog.String("error", err.Error()))
	}
	return a.DuckDB.Close()
}
