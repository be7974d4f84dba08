package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/pinaht/internal/config"
	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/Harshitk-cp/pinaht/internal/service"
	"github.com/Harshitk-cp/pinaht/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func loadSchema(path string) (*domain.Schema, error) {
	if path == "" {
		return domain.DefaultSchema(), nil
	}
	return domain.LoadSchema(path)
}

// openRuns returns the Postgres store when DATABASE_URL is set and the
// in-memory store otherwise. The returned pool is nil in the latter case.
func openRuns(ctx context.Context, logger *zap.Logger) (domain.RunStore, *pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Info("DATABASE_URL not set, keeping runs in memory")
		return store.NewMemoryRunStore(), nil, nil
	}

	pool, err := connect(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database")
	return store.NewRunStore(pool), pool, nil
}

func connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func runnerConfig(maxIter int) service.RunnerConfig {
	if maxIter <= 0 {
		maxIter = config.MaxIterations()
	}
	return service.RunnerConfig{
		MaxIterations: maxIter,
		SeedCertainty: config.SeedCertainty(),
	}
}
