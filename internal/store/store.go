// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"

	"github.com/ashureev/antidoom/internal/domain"
)

// CounterKey addresses one windowed usage counter.
// Period is the window label, e.g. "2026-10-17" for a day or "2026-10-17T13" for an hour.
type CounterKey struct {
	Subject string
	Period  string
	Kind    domain.CounterKind
}

// CounterStore persists windowed numeric accumulators.
type CounterStore interface {
	// GetCounter returns the accumulator for key, or 0 if no record exists.
	GetCounter(ctx context.Context, key CounterKey) (float64, error)

	// IncrementCounter atomically adds delta to the accumulator for key,
	// creating the record on first use, and returns the new value.
	IncrementCounter(ctx context.Context, key CounterKey, delta float64) (float64, error)

	// DeleteCounters removes every counter owned by subject.
	DeleteCounters(ctx context.Context, subject string) (int64, error)
}

// TodoRepository persists per-phone todo lists.
type TodoRepository interface {
	// ListTodos returns the todos for phone ordered by id.
	ListTodos(ctx context.Context, phone string) ([]domain.Todo, error)

	// AddTodo inserts a todo for phone.
	AddTodo(ctx context.Context, phone, task string) (*domain.Todo, error)

	// UpdateTodo replaces the task text of a todo owned by phone.
	// Returns domain.ErrNotFound if no such todo exists for phone.
	UpdateTodo(ctx context.Context, phone string, id int64, task string) (*domain.Todo, error)

	// DeleteTodo removes a todo owned by phone and returns it.
	// Returns domain.ErrNotFound if no such todo exists for phone.
	DeleteTodo(ctx context.Context, phone string, id int64) (*domain.Todo, error)
}

// ProfileRepository persists premium status per phone.
type ProfileRepository interface {
	// GetOrCreateProfile returns the profile for phone, creating a non-premium one if absent.
	GetOrCreateProfile(ctx context.Context, phone string) (*domain.Profile, error)

	// SetPremium creates or updates the premium flag for phone.
	SetPremium(ctx context.Context, phone string, premium bool) (*domain.Profile, error)
}

// Repository is the full persistence surface used by the server.
type Repository interface {
	CounterStore
	TodoRepository
	ProfileRepository

	// DeleteAccount removes todos, profile and counters for phone in one transaction.
	DeleteAccount(ctx context.Context, phone string) (domain.AccountDeletion, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
