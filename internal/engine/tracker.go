package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeoutTracker counts provider timeouts per domain inside a rolling
// window. A background sweep zeroes all counters on a fixed interval so
// a domain's degraded state is never permanent.
type TimeoutTracker struct {
	mu     sync.Mutex
	counts map[int64]int

	interval time.Duration
}

// NewTimeoutTracker creates a tracker with the given reset interval.
func NewTimeoutTracker(interval time.Duration) *TimeoutTracker {
	if interval <= 0 {
		interval = DefaultTrackerReset
	}
	return &TimeoutTracker{
		counts:   make(map[int64]int),
		interval: interval,
	}
}

// RecordTimeout increments the domain's timeout counter. Called only on
// provider-timeout outcomes, never on other provider errors.
func (t *TimeoutTracker) RecordTimeout(domainID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[domainID]++
}

// Count returns the domain's timeout count in the current window.
func (t *TimeoutTracker) Count(domainID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[domainID]
}

// ResetAll zeroes every domain's counter.
func (t *TimeoutTracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.counts) > 0 {
		zap.L().Debug("timeout tracker reset", zap.Int("domains", len(t.counts)))
	}
	t.counts = make(map[int64]int)
}

// Start runs the periodic sweep until ctx is cancelled.
func (t *TimeoutTracker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.ResetAll()
		}
	}
}
