package politeness

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLaunchInterval is the minimum spacing between two crawl attempts
// starting anywhere in the process.
const DefaultLaunchInterval = 200 * time.Millisecond

// LaunchThrottle staggers the start of crawl attempts across all domains.
// It is safe for concurrent use; one instance is shared by every worker.
type LaunchThrottle struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewLaunchThrottle creates a throttle that grants one launch per interval.
// A non-positive interval disables throttling.
func NewLaunchThrottle(interval time.Duration) *LaunchThrottle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &LaunchThrottle{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// AwaitPermission blocks until the caller may launch, or ctx is done.
func (t *LaunchThrottle) AwaitPermission(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Interval returns the configured launch spacing.
func (t *LaunchThrottle) Interval() time.Duration {
	return t.interval
}
