//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
)

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/antidoom_test?sslmode=disable"
	}

	newRepo := func(t *testing.T) *PostgresStore {
		t.Helper()
		ctx := context.Background()
		s, err := NewPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("postgres not available: %v", err)
		}
		t.Cleanup(func() {
			_, _ = s.pool.Exec(ctx, `TRUNCATE usage_counters, todos, profiles`)
			_ = s.Close()
		})
		_, _ = s.pool.Exec(ctx, `TRUNCATE usage_counters, todos, profiles`)
		return s
	}

	runCounterStoreTests(t, func(t *testing.T) CounterStore { return newRepo(t) })
	runRepositoryTests(t, func(t *testing.T) Repository { return newRepo(t) })
}

func TestRedisCounterStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}

	runCounterStoreTests(t, func(t *testing.T) CounterStore {
		t.Helper()
		ctx := context.Background()
		client, err := NewRedisClient(ctx, url)
		if err != nil {
			t.Fatalf("redis not available: %v", err)
		}
		prefix := fmt.Sprintf("antidoom_test:%s:", t.Name())
		t.Cleanup(func() {
			keys, _ := client.Keys(ctx, prefix+"*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			_ = client.Close()
		})
		return NewRedisCounterStore(client, WithKeyPrefix(prefix))
	})
}
