package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/antidoom/internal/domain"
)

// counterCell holds one accumulator behind its own lock so increments on
// different keys never contend.
type counterCell struct {
	mu    sync.Mutex
	value float64
}

// MemoryStore implements Repository in process memory. Nothing survives a
// restart, so it is only selected explicitly (DB_DRIVER=memory) or in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[CounterKey]*counterCell

	dataMu   sync.Mutex
	todos    []domain.Todo
	nextID   int64
	profiles map[string]*domain.Profile
}

var _ Repository = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		counters: make(map[CounterKey]*counterCell),
		profiles: make(map[string]*domain.Profile),
	}
}

func (m *MemoryStore) cell(key CounterKey, create bool) *counterCell {
	m.mu.RLock()
	c, ok := m.counters[key]
	m.mu.RUnlock()
	if ok || !create {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[key]; !ok {
		c = &counterCell{}
		m.counters[key] = c
	}
	return c
}

// GetCounter returns the accumulator for key, or 0 if absent.
func (m *MemoryStore) GetCounter(ctx context.Context, key CounterKey) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("get counter", err)
	}
	c := m.cell(key, false)
	if c == nil {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

// IncrementCounter adds delta under the key's lock.
func (m *MemoryStore) IncrementCounter(ctx context.Context, key CounterKey, delta float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("increment counter", err)
	}
	c := m.cell(key, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += delta
	return c.value, nil
}

// DeleteCounters removes all counters for subject.
func (m *MemoryStore) DeleteCounters(_ context.Context, subject string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.counters {
		if key.Subject == subject {
			delete(m.counters, key)
			n++
		}
	}
	return n, nil
}

// ListTodos returns the todos for phone ordered by id.
func (m *MemoryStore) ListTodos(_ context.Context, phone string) ([]domain.Todo, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	out := []domain.Todo{}
	for _, t := range m.todos {
		if t.Phone == phone {
			out = append(out, t)
		}
	}
	return out, nil
}

// AddTodo inserts a todo for phone.
func (m *MemoryStore) AddTodo(_ context.Context, phone, task string) (*domain.Todo, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	m.nextID++
	t := domain.Todo{ID: m.nextID, Task: task, Phone: phone, CreatedAt: time.Now()}
	m.todos = append(m.todos, t)
	return &t, nil
}

// UpdateTodo replaces the task text of a todo owned by phone.
func (m *MemoryStore) UpdateTodo(_ context.Context, phone string, id int64, task string) (*domain.Todo, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	for i := range m.todos {
		if m.todos[i].ID == id && m.todos[i].Phone == phone {
			m.todos[i].Task = task
			t := m.todos[i]
			return &t, nil
		}
	}
	return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
}

// DeleteTodo removes a todo owned by phone and returns it.
func (m *MemoryStore) DeleteTodo(_ context.Context, phone string, id int64) (*domain.Todo, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	for i, t := range m.todos {
		if t.ID == id && t.Phone == phone {
			m.todos = slices.Delete(m.todos, i, i+1)
			return &t, nil
		}
	}
	return nil, fmt.Errorf("todo %d: %w", id, domain.ErrNotFound)
}

// GetOrCreateProfile returns the profile for phone, creating it if absent.
func (m *MemoryStore) GetOrCreateProfile(_ context.Context, phone string) (*domain.Profile, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	p, ok := m.profiles[phone]
	if !ok {
		now := time.Now()
		p = &domain.Profile{Phone: phone, LastActive: now, CreatedAt: now, UpdatedAt: now}
		m.profiles[phone] = p
	}
	out := *p
	return &out, nil
}

// SetPremium creates or updates the premium flag for phone.
func (m *MemoryStore) SetPremium(_ context.Context, phone string, premium bool) (*domain.Profile, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	now := time.Now()
	p, ok := m.profiles[phone]
	if !ok {
		p = &domain.Profile{Phone: phone, CreatedAt: now}
		m.profiles[phone] = p
	}
	p.IsPremium = premium
	p.LastActive = now
	p.UpdatedAt = now
	out := *p
	return &out, nil
}

// DeleteAccount removes todos, profile and counters for phone.
func (m *MemoryStore) DeleteAccount(ctx context.Context, phone string) (domain.AccountDeletion, error) {
	var out domain.AccountDeletion

	m.dataMu.Lock()
	before := len(m.todos)
	m.todos = slices.DeleteFunc(m.todos, func(t domain.Todo) bool { return t.Phone == phone })
	out.TodosDeleted = int64(before - len(m.todos))
	if _, ok := m.profiles[phone]; ok {
		delete(m.profiles, phone)
		out.ProfileDeleted = 1
	}
	m.dataMu.Unlock()

	n, err := m.DeleteCounters(ctx, phone)
	if err != nil {
		return domain.AccountDeletion{}, err
	}
	out.CountersDeleted = n
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
