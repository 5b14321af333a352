// Package quota implements windowed usage limits on top of a CounterStore.
package quota

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/store"
)

// Unit describes how a counter's values are presented.
type Unit int

const (
	// Count is a discrete integer counter.
	Count Unit = iota
	// Seconds is a continuous duration counter.
	Seconds
)

// Limit is the static configuration of one counter kind.
type Limit struct {
	Kind   domain.CounterKind
	Max    float64
	Window Window
	Unit   Unit
}

// Compiled-in limits.
var (
	CallSeconds    = Limit{Kind: domain.KindCallSeconds, Max: 600, Window: Daily, Unit: Seconds}
	ChatMessages   = Limit{Kind: domain.KindChatMessages, Max: 1000, Window: Daily, Unit: Count}
	ManualUnblocks = Limit{Kind: domain.KindManualUnblocks, Max: 3, Window: Daily, Unit: Count}
	OTPSends       = Limit{Kind: domain.KindOTPSends, Max: 3, Window: Hourly, Unit: Count}
)

// DailyLimits are the per-user quotas exposed to the app.
var DailyLimits = []Limit{CallSeconds, ChatMessages, ManualUnblocks}

// Snapshot is the state of one counter at a point in time.
type Snapshot struct {
	Kind      domain.CounterKind `json:"kind"`
	Period    string             `json:"period"`
	Allowed   bool               `json:"allowed"`
	Used      float64            `json:"used"`
	Remaining float64            `json:"remaining"`
	Limit     float64            `json:"limit"`
}

// ExceededError reports a denied check together with the counter state.
type ExceededError struct {
	Snapshot Snapshot
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: used %g of %g", e.Snapshot.Kind, e.Snapshot.Used, e.Snapshot.Limit)
}

// Unwrap lets errors.Is match domain.ErrQuotaExceeded.
func (e *ExceededError) Unwrap() error { return domain.ErrQuotaExceeded }

// Option configures a Policy.
type Option func(*Policy)

// WithClock overrides the time source used to pick the current window.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// Policy applies one Limit to a CounterStore.
type Policy struct {
	limit Limit
	store store.CounterStore
	now   func() time.Time
}

// NewPolicy creates a policy for limit backed by cs.
func NewPolicy(limit Limit, cs store.CounterStore, opts ...Option) *Policy {
	p := &Policy{limit: limit, store: cs, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit returns the policy's static configuration.
func (p *Policy) Limit() Limit { return p.limit }

func (p *Policy) key(subject string) store.CounterKey {
	return store.CounterKey{
		Subject: subject,
		Period:  p.limit.Window.Key(p.now().Local()),
		Kind:    p.limit.Kind,
	}
}

func (p *Policy) snapshot(key store.CounterKey, used float64) Snapshot {
	remaining := math.Max(0, p.limit.Max-used)
	return Snapshot{
		Kind:      p.limit.Kind,
		Period:    key.Period,
		Allowed:   remaining > 0,
		Used:      used,
		Remaining: remaining,
		Limit:     p.limit.Max,
	}
}

// Check reads the current window without mutating it.
func (p *Policy) Check(ctx context.Context, subject string) (Snapshot, error) {
	if subject == "" {
		return Snapshot{}, domain.NewValidationError("user_id", "is required")
	}
	key := p.key(subject)
	used, err := p.store.GetCounter(ctx, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("check %s: %w", p.limit.Kind, err)
	}
	return p.snapshot(key, used), nil
}

// Allow is Check that returns an *ExceededError when the quota is exhausted.
func (p *Policy) Allow(ctx context.Context, subject string) (Snapshot, error) {
	snap, err := p.Check(ctx, subject)
	if err != nil {
		return snap, err
	}
	if !snap.Allowed {
		return snap, &ExceededError{Snapshot: snap}
	}
	return snap, nil
}

// Record adds amount to the current window and returns the new state.
// It never enforces the limit; callers gate with Check or Allow first.
func (p *Policy) Record(ctx context.Context, subject string, amount float64) (Snapshot, error) {
	if subject == "" {
		return Snapshot{}, domain.NewValidationError("user_id", "is required")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return Snapshot{}, domain.NewValidationError("amount", "must be a non-negative number")
	}
	key := p.key(subject)
	used, err := p.store.IncrementCounter(ctx, key, amount)
	if err != nil {
		return Snapshot{}, fmt.Errorf("record %s: %w", p.limit.Kind, err)
	}
	return p.snapshot(key, used), nil
}

// Engine routes operations to the policy registered for each kind.
type Engine struct {
	policies map[domain.CounterKind]*Policy
}

// NewEngine builds an engine from policies; later policies replace earlier ones of the same kind.
func NewEngine(policies ...*Policy) *Engine {
	e := &Engine{policies: make(map[domain.CounterKind]*Policy, len(policies))}
	for _, p := range policies {
		e.policies[p.limit.Kind] = p
	}
	return e
}

// NewDailyEngine wires the three daily limits to cs.
func NewDailyEngine(cs store.CounterStore, opts ...Option) *Engine {
	policies := make([]*Policy, 0, len(DailyLimits))
	for _, l := range DailyLimits {
		policies = append(policies, NewPolicy(l, cs, opts...))
	}
	return NewEngine(policies...)
}

// Policy returns the policy for kind.
func (e *Engine) Policy(kind domain.CounterKind) (*Policy, error) {
	p, ok := e.policies[kind]
	if !ok {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown counter kind %q", kind))
	}
	return p, nil
}

// Check reads subject's current window for kind.
func (e *Engine) Check(ctx context.Context, subject string, kind domain.CounterKind) (Snapshot, error) {
	p, err := e.Policy(kind)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Check(ctx, subject)
}

// Allow checks kind and fails with *ExceededError when exhausted.
func (e *Engine) Allow(ctx context.Context, subject string, kind domain.CounterKind) (Snapshot, error) {
	p, err := e.Policy(kind)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Allow(ctx, subject)
}

// Record adds amount to subject's current window for kind.
func (e *Engine) Record(ctx context.Context, subject string, kind domain.CounterKind, amount float64) (Snapshot, error) {
	p, err := e.Policy(kind)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Record(ctx, subject, amount)
}
