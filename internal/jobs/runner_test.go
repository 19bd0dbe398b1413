package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddRejectsBadSchedule(t *testing.T) {
	r := NewRunner(time.UTC, testLogger())
	err := r.Add("rank_check", "not a cron", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank_check")
}

func TestEmptySpecIsUnscheduled(t *testing.T) {
	r := NewRunner(time.UTC, testLogger())
	require.NoError(t, r.Add("publish", "", func(context.Context) error { return nil }))
	assert.False(t, r.RunNow("publish"))
	assert.True(t, r.Next("publish").IsZero())
}

func TestRunNow(t *testing.T) {
	r := NewRunner(time.UTC, testLogger())
	var runs atomic.Int32
	require.NoError(t, r.Add("link_health", "30 3 * * *", func(context.Context) error {
		runs.Add(1)
		return errors.New("logged, not returned")
	}))

	assert.True(t, r.RunNow("link_health"))
	assert.True(t, r.RunNow("link_health"))
	assert.Equal(t, int32(2), runs.Load())
	assert.False(t, r.RunNow("unknown"))
}

func TestSkipIfStillRunning(t *testing.T) {
	r := NewRunner(time.UTC, testLogger())
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, r.Add("rank_check", "0 6 * * *", func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		r.RunNow("rank_check")
		close(done)
	}()
	<-started

	// The overlapping invocation returns immediately without running.
	r.RunNow("rank_check")
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	<-done
}

func TestScheduleUsesLocation(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	r := NewRunner(loc, testLogger())
	require.NoError(t, r.Add("rank_check", "0 6 * * *", func(context.Context) error { return nil }))

	r.Start()
	defer r.Stop(context.Background())

	require.Eventually(t, func() bool { return !r.Next("rank_check").IsZero() }, time.Second, 10*time.Millisecond)
	next := r.Next("rank_check").In(loc)
	assert.Equal(t, 6, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestStopCancelsRunningJobs(t *testing.T) {
	r := NewRunner(time.UTC, testLogger())
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, r.Add("publish", "@every 1h", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	go r.RunNow("publish")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.Stop(ctx)
	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}
