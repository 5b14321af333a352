package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 10, 30, 0, 0, time.Local)}
}

func TestFreshCheckReturnsFullQuota(t *testing.T) {
	ctx := context.Background()
	engine := NewDailyEngine(store.NewMemory())

	for _, l := range DailyLimits {
		snap, err := engine.Check(ctx, "u1", l.Kind)
		require.NoError(t, err)
		assert.True(t, snap.Allowed, l.Kind)
		assert.Equal(t, 0.0, snap.Used, l.Kind)
		assert.Equal(t, l.Max, snap.Remaining, l.Kind)
		assert.Equal(t, l.Max, snap.Limit, l.Kind)
	}
}

func TestLimitValues(t *testing.T) {
	assert.Equal(t, 600.0, CallSeconds.Max)
	assert.Equal(t, 1000.0, ChatMessages.Max)
	assert.Equal(t, 3.0, ManualUnblocks.Max)
	assert.Equal(t, 3.0, OTPSends.Max)
	assert.Equal(t, Hourly, OTPSends.Window)
}

func TestManualUnblockScenario(t *testing.T) {
	ctx := context.Background()
	engine := NewDailyEngine(store.NewMemory())

	for i := 0; i < 3; i++ {
		_, err := engine.Record(ctx, "u1", domain.KindManualUnblocks, 1)
		require.NoError(t, err)
	}

	snap, err := engine.Check(ctx, "u1", domain.KindManualUnblocks)
	require.NoError(t, err)
	assert.False(t, snap.Allowed)
	assert.Equal(t, 0.0, snap.Remaining)
	assert.Equal(t, 3.0, snap.Used)
	assert.Equal(t, 3.0, snap.Limit)
}

func TestBoundaryAtLimit(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(CallSeconds, store.NewMemory())

	snap, err := p.Record(ctx, "u1", 599.5)
	require.NoError(t, err)
	assert.True(t, snap.Allowed, "just under the limit is allowed")
	assert.InDelta(t, 0.5, snap.Remaining, 1e-9)

	snap, err = p.Record(ctx, "u1", 0.5)
	require.NoError(t, err)
	assert.False(t, snap.Allowed, "exactly at the limit is denied")
	assert.Equal(t, 0.0, snap.Remaining)
}

func TestRecordDoesNotEnforceLimit(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(CallSeconds, store.NewMemory())

	snap, err := p.Record(ctx, "u1", 900)
	require.NoError(t, err)
	assert.Equal(t, 900.0, snap.Used)
	assert.Equal(t, 0.0, snap.Remaining)
	assert.False(t, snap.Allowed)
}

func TestAllowReturnsExceededError(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(ManualUnblocks, store.NewMemory())
	_, err := p.Record(ctx, "u1", 3)
	require.NoError(t, err)

	snap, err := p.Allow(ctx, "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, snap, exceeded.Snapshot)
	assert.Equal(t, 3.0, exceeded.Snapshot.Used)
}

func TestConcurrentRecordsSumExactly(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(CallSeconds, store.NewMemory())

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Record(ctx, "u1", 1.5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := p.Check(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, workers*1.5, snap.Used)
}

func TestDayBoundaryResetsUsage(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	cs := store.NewMemory()
	p := NewPolicy(ChatMessages, cs, WithClock(c.now))

	_, err := p.Record(ctx, "u1", 5)
	require.NoError(t, err)
	day1 := Daily.Key(c.now())

	c.set(c.now().Add(24 * time.Hour))
	snap, err := p.Check(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Used)
	assert.True(t, snap.Allowed)

	prior, err := cs.GetCounter(ctx, store.CounterKey{Subject: "u1", Period: day1, Kind: domain.KindChatMessages})
	require.NoError(t, err)
	assert.Equal(t, 5.0, prior, "prior day's value is untouched")
}

func TestHourlyWindowResets(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	p := NewPolicy(OTPSends, store.NewMemory(), WithClock(c.now))

	for i := 0; i < 3; i++ {
		_, err := p.Record(ctx, "+15550001", 1)
		require.NoError(t, err)
	}
	_, err := p.Allow(ctx, "+15550001")
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	c.set(c.now().Add(time.Hour))
	_, err = p.Allow(ctx, "+15550001")
	require.NoError(t, err)
}

func TestWindowKeys(t *testing.T) {
	ts := time.Date(2026, 10, 17, 23, 59, 59, 0, time.Local)
	assert.Equal(t, "2026-10-17", Daily.Key(ts))
	assert.Equal(t, "2026-10-17T23", Hourly.Key(ts))
	assert.Equal(t, "2026-10-18", Daily.Key(ts.Add(time.Second)))
}

func TestRecordValidation(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(CallSeconds, store.NewMemory())

	_, err := p.Record(ctx, "u1", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = p.Record(ctx, "", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = p.Check(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEngineUnknownKind(t *testing.T) {
	engine := NewDailyEngine(store.NewMemory())
	_, err := engine.Check(context.Background(), "u1", domain.KindOTPSends)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type failingStore struct{}

func (failingStore) GetCounter(context.Context, store.CounterKey) (float64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) IncrementCounter(context.Context, store.CounterKey, float64) (float64, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) DeleteCounters(context.Context, string) (int64, error) { return 0, nil }

func TestStorageErrorsSurface(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(ChatMessages, failingStore{})

	_, err := p.Check(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	_, err = p.Record(ctx, "u1", 1)
	require.Error(t, err)
}
