package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashureev/antidoom/internal/domain"
)

// PostgresStore implements Repository on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgres connects to dsn and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the required tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS usage_counters (
			subject TEXT NOT NULL,
			period TEXT NOT NULL,
			kind TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (subject, period, kind)
		);
		CREATE TABLE IF NOT EXISTS todos (
			id BIGSERIAL PRIMARY KEY,
			task TEXT NOT NULL,
			phone TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_todos_phone ON todos(phone);
		CREATE TABLE IF NOT EXISTS profiles (
			phone TEXT PRIMARY KEY,
			is_premium BOOLEAN NOT NULL DEFAULT false,
			last_active TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetCounter returns the accumulator for key, or 0 if absent.
func (s *PostgresStore) GetCounter(ctx context.Context, key CounterKey) (float64, error) {
	var value float64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM usage_counters WHERE subject = $1 AND period = $2 AND kind = $3`,
		key.Subject, key.Period, string(key.Kind),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get counter", err)
	}
	return value, nil
}

// IncrementCounter adds delta with a single upsert; the row lock taken by
// ON CONFLICT serializes concurrent increments on the same key.
func (s *PostgresStore) IncrementCounter(ctx context.Context, key CounterKey, delta float64) (float64, error) {
	var value float64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usage_counters (subject, period, kind, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject, period, kind) DO UPDATE SET
			value = usage_counters.value + excluded.value,
			updated_at = now()
		RETURNING value`,
		key.Subject, key.Period, string(key.Kind), delta,
	).Scan(&value)
	if err != nil {
		return 0, storageErr("increment counter", err)
	}
	return value, nil
}

// DeleteCounters removes all counters for subject.
func (s *PostgresStore) DeleteCounters(ctx context.Context, subject string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM usage_counters WHERE subject = $1`, subject)
	if err != nil {
		return 0, storageErr("delete counters", err)
	}
	return tag.RowsAffected(), nil
}

// ListTodos returns the todos for phone ordered by id.
func (s *PostgresStore) ListTodos(ctx context.Context, phone string) ([]domain.Todo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task, phone, created_at FROM todos WHERE phone = $1 ORDER BY id`, phone)
	if err != nil {
		return nil, storageErr("list todos", err)
	}
	todos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Todo, error) {
		var t domain.Todo
		err := row.Scan(&t.ID, &t.Task, &t.Phone, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, storageErr("scan todo rows", err)
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	return todos, nil
}

// AddTodo inserts a todo for phone.
func (s *PostgresStore) AddTodo(ctx context.Context, phone, task string) (*domain.Todo, error) {
	t := domain.Todo{Task: task, Phone: phone}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO todos (task, phone) VALUES ($1, $2) RETURNING id, created_at`, task, phone,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, storageErr("add todo", err)
	}
	return &t, nil
}

// UpdateTodo replaces the task text of a todo owned by phone.
func (s *PostgresStore) UpdateTodo(ctx context.Context, phone string, id int64, task string) (*domain.Todo, error) {
	var t domain.Todo
	err := s.pool.QueryRow(ctx,
		`UPDATE todos SET task = $1 WHERE id = $2 AND phone = $3 RETURNING id, task, phone, created_at`,
		task, id, phone,
	).Scan(&t.ID, &t.Task, &t.Phone, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("update todo", err)
	}
	return &t, nil
}

// DeleteTodo removes a todo owned by phone and returns it.
func (s *PostgresStore) DeleteTodo(ctx context.Context, phone string, id int64) (*domain.Todo, error) {
	var t domain.Todo
	err := s.pool.QueryRow(ctx,
		`DELETE FROM todos WHERE id = $1 AND phone = $2 RETURNING id, task, phone, created_at`,
		id, phone,
	).Scan(&t.ID, &t.Task, &t.Phone, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("delete todo", err)
	}
	return &t, nil
}

// GetOrCreateProfile returns the profile for phone, creating it if absent.
func (s *PostgresStore) GetOrCreateProfile(ctx context.Context, phone string) (*domain.Profile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (phone) VALUES ($1) ON CONFLICT (phone) DO NOTHING`, phone)
	if err != nil {
		return nil, storageErr("create profile", err)
	}
	return s.getProfile(ctx, phone)
}

// SetPremium creates or updates the premium flag for phone.
func (s *PostgresStore) SetPremium(ctx context.Context, phone string, premium bool) (*domain.Profile, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (phone, is_premium) VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET
			is_premium = excluded.is_premium,
			last_active = now(),
			updated_at = now()`, phone, premium)
	if err != nil {
		return nil, storageErr("upsert profile", err)
	}
	return s.getProfile(ctx, phone)
}

func (s *PostgresStore) getProfile(ctx context.Context, phone string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT phone, is_premium, last_active, created_at, updated_at FROM profiles WHERE phone = $1`, phone,
	).Scan(&p.Phone, &p.IsPremium, &p.LastActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", phone, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("scan profile row", err)
	}
	return &p, nil
}

// DeleteAccount removes todos, profile and counters for phone in one transaction.
func (s *PostgresStore) DeleteAccount(ctx context.Context, phone string) (domain.AccountDeletion, error) {
	var out domain.AccountDeletion

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	steps := []struct {
		query string
		dst   *int64
	}{
		{`DELETE FROM todos WHERE phone = $1`, &out.TodosDeleted},
		{`DELETE FROM profiles WHERE phone = $1`, &out.ProfileDeleted},
		{`DELETE FROM usage_counters WHERE subject = $1`, &out.CountersDeleted},
	}
	for _, step := range steps {
		tag, err := tx.Exec(ctx, step.query, phone)
		if err != nil {
			return domain.AccountDeletion{}, storageErr("delete account", err)
		}
		*step.dst = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AccountDeletion{}, storageErr("commit account delete", err)
	}
	return out, nil
}

