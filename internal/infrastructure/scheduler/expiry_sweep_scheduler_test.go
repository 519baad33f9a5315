package scheduler

import (
	"context"
	"errors"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/application/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type labelRunner struct {
	job chan string
}

func (r *labelRunner) Run(ctx context.Context) (*sweeper.Report, error) {
	job, _ := pprof.Label(ctx, "job")
	r.job <- job
	return &sweeper.Report{}, nil
}

type countingRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	err     error
	started chan struct{}
	once    sync.Once
}

func (r *countingRunner) Run(ctx context.Context) (*sweeper.Report, error) {
	r.calls.Add(1)
	if r.started != nil {
		r.once.Do(func() { close(r.started) })
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return &sweeper.Report{}, ctx.Err()
		}
	}
	if r.err != nil {
		return &sweeper.Report{}, r.err
	}
	return &sweeper.Report{Passes: []sweeper.PassReport{{Pass: sweeper.PassTrialExpiry, Transitioned: 2}}}, nil
}

func TestExpirySweepSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExpirySweepSchedulerConfig
		wantErr bool
	}{
		{"default", DefaultExpirySweepSchedulerConfig(), false},
		{"hour set", ExpirySweepSchedulerConfig{Interval: time.Hour, RunAtHour: 2}, false},
		{"zero interval", ExpirySweepSchedulerConfig{RunAtHour: -1}, true},
		{"hour too large", ExpirySweepSchedulerConfig{Interval: time.Hour, RunAtHour: 24}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpirySweepScheduler_FirstDelay(t *testing.T) {
	s := NewExpirySweepScheduler(&countingRunner{}, nil, ExpirySweepSchedulerConfig{Interval: time.Hour, RunAtHour: 2})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 1, 30, 0, 0, time.UTC) }
	assert.Equal(t, 30*time.Minute, s.firstDelay())

	s.now = func() time.Time { return time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC) }
	assert.Equal(t, 24*time.Hour, s.firstDelay())

	s.config.RunAtHour = -1
	assert.Zero(t, s.firstDelay())
}

func TestExpirySweepScheduler_RunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{
		Enabled: true, Interval: 20 * time.Millisecond, RunAtHour: -1,
	})
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	require.NotNil(t, s.LastReport())
	assert.Equal(t, 2, s.LastReport().Transitions())
}

func TestExpirySweepScheduler_Disabled(t *testing.T) {
	runner := &countingRunner{}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{Interval: time.Hour})
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.TriggerImmediate(context.Background()), ErrSchedulerNotRunning)
}

func TestExpirySweepScheduler_NoOverlap(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{}), started: make(chan struct{})}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{
		Enabled: true, Interval: 5 * time.Millisecond, RunAtHour: -1,
	})
	require.NoError(t, s.Start(context.Background()))
	<-runner.started

	assert.ErrorIs(t, s.TriggerImmediate(context.Background()), ErrRunInProgress)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load(), "ticks during a run are dropped")

	close(runner.block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestExpirySweepScheduler_TriggerImmediate(t *testing.T) {
	runner := &countingRunner{err: errors.New("db down")}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{
		Enabled: true, Interval: time.Hour, RunAtHour: 23,
	})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.TriggerImmediate(context.Background()))
	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestExpirySweepScheduler_ConcurrentStartStop(t *testing.T) {
	runner := &countingRunner{}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{
		Enabled: true, Interval: time.Hour, RunAtHour: 23,
	})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Start(context.Background()))
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, s.Stop(ctx))
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	assert.Zero(t, runner.calls.Load())
}

func TestExpirySweepScheduler_SweepCarriesJobLabel(t *testing.T) {
	runner := &labelRunner{job: make(chan string, 1)}
	s := NewExpirySweepScheduler(runner, nil, ExpirySweepSchedulerConfig{
		Enabled: true, Interval: time.Hour, RunAtHour: -1, JobTimeout: time.Second,
	})

	s.execute(context.Background())

	select {
	case job := <-runner.job:
		assert.Equal(t, "expiry_sweep", job)
	default:
		t.Fatal("sweep did not run")
	}
}
