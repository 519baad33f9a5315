package cache

import (
	"context"
	"sync"
	"time"
)

// InMemoryRateLimiter is a sliding-window limiter for single-instance
// deployments and tests. State is not shared between processes.
type InMemoryRateLimiter struct {
	mu        sync.Mutex
	events    map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryRateLimiter creates a limiter allowing limit events per window
// for each key. It starts a background goroutine to drop idle keys.
func NewInMemoryRateLimiter(limit int, window time.Duration) (*InMemoryRateLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	l := &InMemoryRateLimiter{
		events:   make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop()

	return l, nil
}

// Allow records one event for key and reports whether it fits in the window
func (l *InMemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.events[key], now.Add(-l.window))
	if len(recent) >= l.limit {
		l.events[key] = recent
		return false, nil
	}
	l.events[key] = append(recent, now)
	return true, nil
}

// prune drops events at or before cutoff; events are kept in time order
func prune(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	return events[i:]
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *InMemoryRateLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryRateLimiter) cleanupLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, events := range l.events {
		if recent := prune(events, cutoff); len(recent) == 0 {
			delete(l.events, key)
		} else {
			l.events[key] = recent
		}
	}
}

// Size returns the number of tracked keys
func (l *InMemoryRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
