package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ashureev/antidoom/internal/config"
	"github.com/ashureev/antidoom/internal/store"
)

// openRepository opens the configured backend and verifies it answers.
func openRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	var (
		repo store.Repository
		err  error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		repo, err = store.NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		slog.Warn("Using in-memory storage, nothing survives a restart")
		repo = store.NewMemory()
	default:
		repo, err = store.NewSQLite(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "driver", cfg.DBDriver)
	return repo, nil
}

// openOTPCounters returns a Redis counter store when REDIS_URL is set so OTP
// send limits are shared across instances. It returns nil otherwise.
func openOTPCounters(ctx context.Context, cfg *config.Config) (*store.RedisCounterStore, *goredis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil, nil
	}
	client, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Redis connected for OTP rate limits")
	return store.NewRedisCounterStore(client), client, nil
}
