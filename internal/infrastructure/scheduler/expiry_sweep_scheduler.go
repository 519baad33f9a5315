// Package scheduler runs background jobs inside the API process.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bizbook/backend/internal/application/sweeper"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SweepRunner executes one expiry sweep
type SweepRunner interface {
	Run(ctx context.Context) (*sweeper.Report, error)
}

// ExpirySweepSchedulerConfig holds configuration for the expiry sweep scheduler
type ExpirySweepSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval is the time between sweeps
	Interval time.Duration

	// RunAtHour is the UTC hour (0-23) of the first sweep; -1 sweeps at start
	RunAtHour int

	// JobTimeout is the maximum time for one sweep
	JobTimeout time.Duration
}

// DefaultExpirySweepSchedulerConfig returns default configuration
func DefaultExpirySweepSchedulerConfig() ExpirySweepSchedulerConfig {
	return ExpirySweepSchedulerConfig{
		Enabled:    true,
		Interval:   time.Hour,
		RunAtHour:  -1,
		JobTimeout: 10 * time.Minute,
	}
}

// Validate checks the configuration
func (c ExpirySweepSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.RunAtHour < -1 || c.RunAtHour > 23 {
		return fmt.Errorf("%w: run_at_hour must be -1 or 0-23", ErrInvalidConfig)
	}
	return nil
}

// ExpirySweepScheduler runs the expiry sweeper on a fixed interval. Runs never
// overlap; a tick that arrives while a sweep is still running is dropped.
type ExpirySweepScheduler struct {
	runner SweepRunner
	logger *zap.Logger
	config ExpirySweepSchedulerConfig
	now    func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	sweeping  bool
	lastRun   *sweeper.Report
}

// NewExpirySweepScheduler creates a new expiry sweep scheduler
func NewExpirySweepScheduler(runner SweepRunner, logger *zap.Logger, config ExpirySweepSchedulerConfig) *ExpirySweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultExpirySweepSchedulerConfig().JobTimeout
	}
	return &ExpirySweepScheduler{
		runner: runner,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Start starts the scheduler
func (s *ExpirySweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Expiry sweep scheduler is disabled")
		return nil
	}
	if err := s.config.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.isRunning = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(ctx)

	s.logger.Info("Expiry sweep scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("run_at_hour", s.config.RunAtHour),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep to finish
func (s *ExpirySweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Expiry sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Expiry sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// firstDelay returns the wait before the first sweep
func (s *ExpirySweepScheduler) firstDelay() time.Duration {
	if s.config.RunAtHour < 0 {
		return 0
	}
	now := s.now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.RunAtHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (s *ExpirySweepScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	delay := s.firstDelay()
	if delay > 0 {
		s.logger.Info("First expiry sweep scheduled", zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	s.execute(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Expiry sweep loop stopping")
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

// execute runs one sweep unless another is in flight
func (s *ExpirySweepScheduler) execute(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Warn("Skipping expiry sweep, previous run still in progress")
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	var (
		report *sweeper.Report
		err    error
	)
	start := time.Now()
	telemetry.WithProfilingLabels(runCtx, map[string]string{telemetry.ProfilingLabelJob: "expiry_sweep"}, func(ctx context.Context) {
		report, err = s.runner.Run(ctx)
	})
	duration := time.Since(start)

	s.mu.Lock()
	s.lastRun = report
	s.mu.Unlock()

	switch {
	case err != nil:
		s.logger.Error("Expiry sweep aborted", zap.Duration("duration", duration), zap.Error(err))
	case report.Failed():
		s.logger.Warn("Expiry sweep finished with failures",
			zap.Duration("duration", duration),
			zap.Int("transitions", report.Transitions()))
	default:
		s.logger.Info("Expiry sweep completed",
			zap.Duration("duration", duration),
			zap.Int("transitions", report.Transitions()))
	}
}

// TriggerImmediate starts a sweep now without waiting for the next tick
func (s *ExpirySweepScheduler) TriggerImmediate(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	if s.sweeping {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate expiry sweep")

	go func() {
		defer s.wg.Done()
		s.execute(ctx)
	}()
	return nil
}

// LastReport returns the report of the most recent sweep, if any
func (s *ExpirySweepScheduler) LastReport() *sweeper.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// IsRunning returns whether the scheduler is running
func (s *ExpirySweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
