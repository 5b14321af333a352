package otp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/antidoom/internal/domain"
	"github.com/ashureev/antidoom/internal/quota"
	"github.com/ashureev/antidoom/internal/store"
)

type fakeVerifier struct {
	mu    sync.Mutex
	sends int
	code  string
}

func (f *fakeVerifier) StartVerification(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return StatusPending, nil
}

func (f *fakeVerifier) CheckVerification(_ context.Context, _, code string) (string, error) {
	if code == f.code {
		return StatusApproved, nil
	}
	return StatusPending, nil
}

type brokenCounters struct{}

func (brokenCounters) GetCounter(context.Context, store.CounterKey) (float64, error) {
	return 0, errors.New("redis down")
}

func (brokenCounters) IncrementCounter(context.Context, store.CounterKey, float64) (float64, error) {
	return 0, errors.New("redis down")
}

func (brokenCounters) DeleteCounters(context.Context, string) (int64, error) { return 0, nil }

func TestSendRateLimited(t *testing.T) {
	v := &fakeVerifier{}
	svc := NewService(v, quota.NewPolicy(quota.OTPSends, store.NewMemory()), NewTokenIssuer("k"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := svc.Send(ctx, "+1555")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, status)
	}
	_, err := svc.Send(ctx, "+1555")
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, 3, v.sends)

	_, err = svc.Send(ctx, "+1666")
	assert.NoError(t, err, "limit is per phone")
}

func TestSendFailsOpenOnLimiterError(t *testing.T) {
	v := &fakeVerifier{}
	svc := NewService(v, quota.NewPolicy(quota.OTPSends, brokenCounters{}), NewTokenIssuer("k"))

	for i := 0; i < 5; i++ {
		_, err := svc.Send(context.Background(), "+1555")
		require.NoError(t, err)
	}
	assert.Equal(t, 5, v.sends)
}

func TestSendValidatesPhone(t *testing.T) {
	svc := NewService(&fakeVerifier{}, nil, NewTokenIssuer("k"))
	_, err := svc.Send(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestVerify(t *testing.T) {
	issuer := NewTokenIssuer("k")
	svc := NewService(&fakeVerifier{code: "4242"}, nil, issuer)
	ctx := context.Background()

	token, err := svc.Verify(ctx, "+1555", "4242")
	require.NoError(t, err)
	phone, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "+1555", phone)

	_, err = svc.Verify(ctx, "+1555", "0000")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Verify(ctx, "+1555", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
