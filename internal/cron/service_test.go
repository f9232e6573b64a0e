package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_InvalidSchedule(t *testing.T) {
	_, err := NewService("not a schedule", time.Hour, nil)
	assert.Error(t, err)

	_, err = NewService("* * * * * *", time.Hour, nil)
	assert.Error(t, err, "seconds field is not accepted")
}

func TestRunOnce_UsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var got time.Time
	s, err := NewService("", 48*time.Hour, func(_ context.Context, before time.Time) (int64, error) {
		got = before
		return 7, nil
	})
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, now.Add(-48*time.Hour), got)

	st := s.Status()
	assert.Equal(t, now, st.LastRun)
	assert.EqualValues(t, 7, st.Removed)
	assert.Empty(t, st.LastError)
	next := st.NextRun.In(time.Local)
	assert.True(t, next.After(now))
	assert.Equal(t, 3, next.Hour())
	assert.Zero(t, next.Minute())
}

func TestRunOnce_Error(t *testing.T) {
	s, err := NewService("@daily", time.Hour, func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("locked")
	})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "locked")
	assert.Equal(t, "locked", s.Status().LastError)
}

func TestStart_Disabled(t *testing.T) {
	var calls atomic.Int32
	s, err := NewService("@every 1s", 0, func(context.Context, time.Time) (int64, error) {
		calls.Add(1)
		return 0, nil
	})
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	assert.True(t, s.Status().NextRun.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Start(ctx), context.DeadlineExceeded)
	assert.Zero(t, calls.Load())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	fired := make(chan struct{}, 1)
	s, err := NewService("@every 1s", time.Hour, func(context.Context, time.Time) (int64, error) {
		select {
		case fired <- struct{}{}:
		default:
		}
		return 1, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("prune did not run")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
