package fo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget scripts the role answers a promotion poll would observe.
type fakeTarget struct {
	recoveryStates []any // bool or error, consumed per IsInRecovery call
	lockFree       bool
	lockErr        error

	promoteCalls int
	lockCalls    int
	unlockCalls  int
}

func (f *fakeTarget) IsInRecovery(_ context.Context) (bool, error) {
	if len(f.recoveryStates) == 0 {
		return false, nil
	}
	next := f.recoveryStates[0]
	f.recoveryStates = f.recoveryStates[1:]
	if err, ok := next.(error); ok {
		return false, err
	}
	return next.(bool), nil
}

func (f *fakeTarget) Promote(_ context.Context) error {
	f.promoteCalls++
	return nil
}

func (f *fakeTarget) TryAdvisoryLock(_ context.Context) (bool, error) {
	f.lockCalls++
	return f.lockFree, f.lockErr
}

func (f *fakeTarget) AdvisoryUnlock(_ context.Context) error {
	f.unlockCalls++
	return nil
}

func fastPromoter(attempts int, lock bool) *Promoter {
	return NewPromoter(nil, &PromoterOpts{
		PollInterval: time.Millisecond,
		PollAttempts: attempts,
		AdvisoryLock: lock,
	})
}

func TestPromote_AlreadyMasterIsNoop(t *testing.T) {
	target := &fakeTarget{recoveryStates: []any{false}}

	err := fastPromoter(3, false).promote(context.Background(), target, "db2:5432")

	require.NoError(t, err)
	assert.Equal(t, 0, target.promoteCalls, "promotion must not be re-issued on a master")
}

func TestPromote_RoleFlipsMidPoll(t *testing.T) {
	// standby on entry, still standby on first poll, master on second
	target := &fakeTarget{recoveryStates: []any{true, true, false}}

	err := fastPromoter(5, false).promote(context.Background(), target, "db2:5432")

	require.NoError(t, err)
	assert.Equal(t, 1, target.promoteCalls)
}

func TestPromote_Timeout(t *testing.T) {
	// never leaves recovery
	target := &fakeTarget{recoveryStates: []any{true, true, true, true, true, true}}

	err := fastPromoter(3, false).promote(context.Background(), target, "db2:5432")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPromotionTimeout), "got: %v", err)
	assert.Contains(t, err.Error(), "db2:5432")
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestPromote_TransientPollErrorsAreRetried(t *testing.T) {
	target := &fakeTarget{recoveryStates: []any{
		true,
		errors.New("server closed the connection unexpectedly"),
		false,
	}}

	err := fastPromoter(5, false).promote(context.Background(), target, "db2:5432")

	require.NoError(t, err)
}

func TestPromote_AdvisoryLockBusy(t *testing.T) {
	target := &fakeTarget{
		recoveryStates: []any{true},
		lockFree:       false,
	}

	err := fastPromoter(3, true).promote(context.Background(), target, "db2:5432")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPromotionInFlight), "got: %v", err)
	assert.Equal(t, 0, target.promoteCalls)
}

func TestPromote_AdvisoryLockAcquiredAndReleased(t *testing.T) {
	target := &fakeTarget{
		recoveryStates: []any{true, false},
		lockFree:       true,
	}

	err := fastPromoter(3, true).promote(context.Background(), target, "db2:5432")

	require.NoError(t, err)
	assert.Equal(t, 1, target.lockCalls)
	assert.Equal(t, 1, target.unlockCalls)
}

func TestPromote_ContextCancel(t *testing.T) {
	target := &fakeTarget{recoveryStates: []any{true, true, true, true}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPromoter(nil, &PromoterOpts{
		PollInterval: time.Hour, // would hang without ctx handling
		PollAttempts: 3,
	}).promote(ctx, target, "db2:5432")

	require.ErrorIs(t, err, context.Canceled)
}
