package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	s := New(loc, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestRegister_RejectsDuplicateAndBadSpec(t *testing.T) {
	s := newTestScheduler(t)
	noop := JobFunc(func(context.Context, time.Time) error { return nil })

	require.NoError(t, s.Register("a", "0 0 * * *", "", noop))
	assert.ErrorIs(t, s.Register("a", "0 1 * * *", "", noop), ErrDuplicateJob)
	assert.Error(t, s.Register("b", "not a spec", "", noop))
	require.NoError(t, s.Register("manual-only", "", "", noop))

	assert.Equal(t, []string{"a", "manual-only"}, s.Names())
}

func TestTrigger_PassesClockInLocation(t *testing.T) {
	s := newTestScheduler(t)
	fixed := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	var got time.Time
	require.NoError(t, s.Register("capture", "", "", JobFunc(func(_ context.Context, now time.Time) error {
		got = now
		return nil
	})))

	require.NoError(t, s.Trigger(context.Background(), "capture"))
	assert.True(t, got.Equal(fixed))
	assert.Equal(t, "Asia/Ho_Chi_Minh", got.Location().String())
	assert.Equal(t, 9, got.Hour())
}

func TestTrigger_RecordsFailureAndClearsOnSuccess(t *testing.T) {
	s := newTestScheduler(t)
	fail := true
	require.NoError(t, s.Register("flaky", "0 0 * * *", "flaky job", JobFunc(func(context.Context, time.Time) error {
		if fail {
			return errors.New("store unavailable")
		}
		return nil
	})))

	err := s.Trigger(context.Background(), "flaky")
	require.Error(t, err)

	st := s.Jobs()[0]
	assert.Equal(t, int64(1), st.Runs)
	assert.Equal(t, int64(1), st.Failures)
	assert.Equal(t, "store unavailable", st.LastError)
	assert.NotNil(t, st.LastRun)

	fail = false
	require.NoError(t, s.Trigger(context.Background(), "flaky"))
	st = s.Jobs()[0]
	assert.Equal(t, int64(2), st.Runs)
	assert.Empty(t, st.LastError)
}

func TestTrigger_RecoversPanic(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register("boom", "", "", JobFunc(func(context.Context, time.Time) error {
		panic("nil map")
	})))

	err := s.Trigger(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, 0, s.Jobs()[0].Running)
}

func TestTrigger_UnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	assert.ErrorIs(t, s.Trigger(context.Background(), "missing"), ErrUnknownJob)
	assert.ErrorIs(t, s.TriggerAsync("missing"), ErrUnknownJob)
}

func TestTriggerAsync_RunsInBackground(t *testing.T) {
	s := newTestScheduler(t)
	var calls atomic.Int32
	done := make(chan struct{})
	require.NoError(t, s.Register("bg", "", "", JobFunc(func(context.Context, time.Time) error {
		calls.Add(1)
		close(done)
		return nil
	})))

	require.NoError(t, s.TriggerAsync("bg"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async trigger did not run")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestStop_CancelsAsyncRuns(t *testing.T) {
	loc := time.UTC
	s := New(loc, zerolog.Nop())
	started := make(chan struct{})
	require.NoError(t, s.Register("long", "", "", JobFunc(func(ctx context.Context, _ time.Time) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})))
	s.Start()
	require.NoError(t, s.TriggerAsync("long"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, "context canceled", s.Jobs()[0].LastError)
}

func TestTriggerAsync_AfterStop(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	var calls atomic.Int32
	require.NoError(t, s.Register("late", "", "", JobFunc(func(context.Context, time.Time) error {
		calls.Add(1)
		return nil
	})))
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	err := s.TriggerAsync("late")
	assert.True(t, errors.Is(err, ErrStopped), "got %v", err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTriggerAsync_RacingStop(t *testing.T) {
	s := New(time.UTC, zerolog.Nop())
	require.NoError(t, s.Register("quick", "", "", JobFunc(func(context.Context, time.Time) error { return nil })))
	s.Start()

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopped <- s.Stop(ctx)
	}()
	for i := 0; i < 100; i++ {
		if err := s.TriggerAsync("quick"); err != nil {
			require.True(t, errors.Is(err, ErrStopped), "got %v", err)
		}
	}
	require.NoError(t, <-stopped)
}

func TestJobs_ReportsNextRun(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register("monthly", "0 9 1 * *", "", JobFunc(func(context.Context, time.Time) error { return nil })))
	s.Start()

	st := s.Jobs()[0]
	require.NotNil(t, st.NextRun)
	next := st.NextRun.In(s.Location())
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 9, next.Hour())
}
