// Command blockgraph-server serves workflow drafts over HTTP: fetching and
// syncing drafts, auto layout, variable rename and removal, and publishing.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowgraph/blockgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/blockgraph/internal/adapters/repository/postgres"
	"github.com/flowgraph/blockgraph/internal/adapters/repository/sqlite"
	"github.com/flowgraph/blockgraph/internal/app/draftsync"
	"github.com/flowgraph/blockgraph/internal/config"
	"github.com/flowgraph/blockgraph/internal/core/capability"
	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/blockgraph/internal/logging"
	"github.com/flowgraph/blockgraph/pkg/serialization"
	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	table, err := capability.Load(cfg.CapabilitiesFile)
	if err != nil {
		return err
	}

	ser, err := cfg.Serializer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store, ser)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.NewMetrics()
	s := &server{
		drafts:  draftsync.NewClient(store, draftsync.WithLogger(logger), draftsync.WithMetrics(m)),
		table:   table,
		logger:  logger,
		metrics: m,
		timeout: cfg.Server.RequestTimeout,
	}
	app := newApp(s, cfg.Server)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("starting blockgraph server",
		slog.String("addr", cfg.Server.Addr),
		slog.String("store", cfg.Store.Driver),
		slog.String("serializer", ser.Describe()),
	)
	return app.Listen(cfg.Server.Addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// openStore builds the configured draft store and its close function.
func openStore(ctx context.Context, cfg config.StoreConfig, ser *serialization.Serializer) (draft.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid database url: %w", err)
		}
		if cfg.MaxConnections > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConnections)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store, err := postgres.NewDraftStore(pool, ser, postgres.WithTableName(cfg.TableName))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.CreateTables(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		store := sqlite.NewDraftStore(db, ser).WithTableName(cfg.TableName)
		if err := store.CreateTables(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return memory.NewStore(ser), func() {}, nil
	}
}
