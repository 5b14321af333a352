package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	sqliteRetryAttempts = 3
	sqliteRetryDelay    = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL plus a per-connection busy timeout lets concurrent writers queue
	// instead of failing immediately.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage_counters (
		subject TEXT NOT NULL,
		period TEXT NOT NULL,
		kind TEXT NOT NULL,
		value REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (subject, period, kind)
	);

	CREATE TABLE IF NOT EXISTS todos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT NOT NULL,
		phone TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_todos_phone ON todos(phone);

	CREATE TABLE IF NOT EXISTS profiles (
		phone TEXT PRIMARY KEY,
		is_premium INTEGER NOT NULL DEFAULT 0,
		last_active INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetCounter returns the accumulator for key, or 0 if absent.
func (s *SQLiteStore) GetCounter(ctx context.Context, key CounterKey) (float64, error) {
	query := `SELECT value FROM usage_counters WHERE subject = ? AND period = ? AND kind = ?`

	var value float64
	err := s.db.QueryRowContext(ctx, query, key.Subject, key.Period, string(key.Kind)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("get counter", err)
	}
	return value, nil
}

// IncrementCounter adds delta in a single upsert so concurrent increments
// for the same key never lose updates.
func (s *SQLiteStore) IncrementCounter(ctx context.Context, key CounterKey, delta float64) (float64, error) {
	query := `
	INSERT INTO usage_counters (subject, period, kind, value, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(subject, period, kind) DO UPDATE SET
		value = usage_counters.value + excluded.value,
		updated_at = excluded.updated_at
	RETURNING value`

	var value float64
	err := shared.RetryOnConflict(ctx, "increment counter", sqliteRetryAttempts, sqliteRetryDelay, func() error {
		now := time.Now().Unix()
		return s.db.QueryRowContext(ctx, query,
			key.Subject, key.Period, string(key.Kind), delta, now, now,
		).Scan(&value)
	})
	if err != nil {
		return 0, storageErr("increment counter", err)
	}
	return value, nil
}

// DeleteCounters removes all counters for subject.
func (s *SQLiteStore) DeleteCounters(ctx context.Context, subject string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE subject = ?`, subject)
	if err != nil {
		return 0, storageErr("delete counters", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("get rows affected", err)
	}
	return n, nil
}

// ListTodos returns the todos for phone ordered by id.
func (s *SQLiteStore) ListTodos(ctx context.Context, phone string) ([]domain.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, phone, created_at FROM todos WHERE phone = ? ORDER BY id`, phone)
	if err != nil {
		return nil, storageErr("list todos", err)
	}
	defer rows.Close()

	todos := []domain.Todo{}
	for rows.Next() {
		var t domain.Todo
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Task, &t.Phone, &createdAt); err != nil {
			return nil, storageErr("scan todo row", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate todos", err)
	}
	return todos, nil
}

// AddTodo inserts a todo for phone.
func (s *SQLiteStore) AddTodo(ctx context.Context, phone, task string) (*domain.Todo, error) {
	now := time.Now()
	var id int64
	err := shared.RetryOnConflict(ctx, "add todo", sqliteRetryAttempts, sqliteRetryDelay, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO todos (task, phone, created_at) VALUES (?, ?, ?) RETURNING id`,
			task, phone, now.Unix(),
		).Scan(&id)
	})
	if err != nil {
		return nil, storageErr("add todo", err)
	}
	return &domain.Todo{ID: id, Task: task, Phone: phone, CreatedAt: time.Unix(now.Unix(), 0)}, nil
}

// UpdateTodo replaces the task text of a todo owned by phone.
func (s *SQLiteStore) UpdateTodo(ctx context.Context, phone string, id int64, task string) (*domain.Todo, error) {
	var t domain.Todo
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE todos SET task = ? WHERE id = ? AND phone = ? RETURNING id, task, phone, created_at`,
		task, id, phone,
	).Scan(&t.ID, &t.Task, &t.Phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("update todo", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// DeleteTodo removes a todo owned by phone and returns it.
func (s *SQLiteStore) DeleteTodo(ctx context.Context, phone string, id int64) (*domain.Todo, error) {
	var t domain.Todo
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM todos WHERE id = ? AND phone = ? RETURNING id, task, phone, created_at`,
		id, phone,
	).Scan(&t.ID, &t.Task, &t.Phone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("delete todo", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// GetOrCreateProfile returns the profile for phone, creating it if absent.
func (s *SQLiteStore) GetOrCreateProfile(ctx context.Context, phone string) (*domain.Profile, error) {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO profiles (phone, is_premium, last_active, created_at, updated_at)
	VALUES (?, 0, ?, ?, ?)
	ON CONFLICT(phone) DO NOTHING`, phone, now, now, now)
	if err != nil {
		return nil, storageErr("create profile", err)
	}
	return s.getProfile(ctx, phone)
}

// SetPremium creates or updates the premium flag for phone.
func (s *SQLiteStore) SetPremium(ctx context.Context, phone string, premium bool) (*domain.Profile, error) {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO profiles (phone, is_premium, last_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(phone) DO UPDATE SET
		is_premium = excluded.is_premium,
		last_active = excluded.last_active,
		updated_at = excluded.updated_at`, phone, premium, now, now, now)
	if err != nil {
		return nil, storageErr("upsert profile", err)
	}
	return s.getProfile(ctx, phone)
}

func (s *SQLiteStore) getProfile(ctx context.Context, phone string) (*domain.Profile, error) {
	var p domain.Profile
	var lastActive, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, is_premium, last_active, created_at, updated_at FROM profiles WHERE phone = ?`, phone,
	).Scan(&p.Phone, &p.IsPremium, &lastActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", phone, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("scan profile row", err)
	}
	p.LastActive = time.Unix(lastActive, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// DeleteAccount removes todos, profile and counters for phone.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, phone string) (domain.AccountDeletion, error) {
	var out domain.AccountDeletion

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, storageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		query string
		dst   *int64
	}{
		{`DELETE FROM todos WHERE phone = ?`, &out.TodosDeleted},
		{`DELETE FROM profiles WHERE phone = ?`, &out.ProfileDeleted},
		{`DELETE FROM usage_counters WHERE subject = ?`, &out.CountersDeleted},
	}
	for _, step := range steps {
		result, err := tx.ExecContext(ctx, step.query, phone)
		if err != nil {
			return domain.AccountDeletion{}, storageErr("delete account", err)
		}
		if *step.dst, err = result.RowsAffected(); err != nil {
			return domain.AccountDeletion{}, storageErr("get rows affected", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.AccountDeletion{}, storageErr("commit account delete", err)
	}
	return out, nil
}
