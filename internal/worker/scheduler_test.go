package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/worker"
)

type slowRunner struct {
	calls    atomic.Int32
	finished atomic.Int32
	running  atomic.Bool
	overlap  atomic.Bool
	identity atomic.Value
	hold     time.Duration
}

func (r *slowRunner) Run(_ context.Context, id auth.Identity) (domain.ProcessResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.overlap.Store(true)
	}
	r.calls.Add(1)
	r.identity.Store(id)
	time.Sleep(r.hold)
	r.running.Store(false)
	r.finished.Add(1)
	return domain.ProcessResult{}, nil
}

type countingRefresher struct{ calls atomic.Int32 }

func (c *countingRefresher) RefreshAll(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestScheduler_RunsAsSystemIdentity(t *testing.T) {
	runner := &slowRunner{}
	refresher := &countingRefresher{}
	s := worker.NewScheduler(runner, refresher, worker.SchedulerConfig{
		ProcessInterval:      time.Second,
		CacheRefreshInterval: time.Second,
	}, zap.NewNop())
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return refresher.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, auth.SystemIdentity, runner.identity.Load())
}

func TestScheduler_StopWaitsForRunningJob(t *testing.T) {
	runner := &slowRunner{hold: 1500 * time.Millisecond}
	s := worker.NewScheduler(runner, nil, worker.SchedulerConfig{ProcessInterval: time.Second}, zap.NewNop())
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return runner.running.Load() }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	// The in-flight run completed before Stop returned.
	assert.Equal(t, runner.calls.Load(), runner.finished.Load())
	assert.False(t, runner.overlap.Load(), "runs must never overlap")

	calls := runner.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, runner.calls.Load(), "no invocations after stop")
}

func TestScheduler_StopHonoursDeadline(t *testing.T) {
	runner := &slowRunner{hold: 3 * time.Second}
	s := worker.NewScheduler(runner, nil, worker.SchedulerConfig{ProcessInterval: time.Second}, zap.NewNop())
	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return runner.running.Load() }, 3*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
