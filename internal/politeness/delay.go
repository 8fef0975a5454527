package politeness

import (
	"context"
	"sync/atomic"
	"time"
)

// Default pacing values.
const (
	// DefaultMinDelay is the lower bound of the synthesized fetch delay and
	// the extra pause added once a domain asked us to slow down.
	DefaultMinDelay = 1 * time.Second

	// DefaultMaxDelay is the upper bound of the synthesized fetch delay.
	DefaultMaxDelay = 2500 * time.Millisecond

	// DefaultSleepChunk is the longest single sleep; longer waits loop.
	DefaultSleepChunk = 5 * time.Second

	// DefaultRetryMin is the shortest wait honored after a 429.
	DefaultRetryMin = 1 * time.Second

	// DefaultRetryMax is the longest wait honored after a 429.
	DefaultRetryMax = 5 * time.Second
)

// CrawlDelayTimer spaces fetches against one domain.
//
// With a robots.txt Crawl-delay it waits out whatever part of the declared
// delay the fetch itself did not use. Without one it waits twice the fetch
// time, clamped to [min, max]. After the first rate-limit signal every
// later wait gains one extra min-delay pause.
type CrawlDelayTimer struct {
	// declared is the robots.txt crawl delay; zero means absent.
	declared time.Duration

	// slowDown is sticky for the rest of the attempt once set.
	slowDown atomic.Bool

	minDelay time.Duration
	maxDelay time.Duration
	chunk    time.Duration
	retryMin time.Duration
	retryMax time.Duration

	sleep Sleeper
}

// TimerOption configures a CrawlDelayTimer.
type TimerOption func(*CrawlDelayTimer)

// WithDefaultBounds sets the clamp used when no delay is declared.
func WithDefaultBounds(minDelay, maxDelay time.Duration) TimerOption {
	return func(t *CrawlDelayTimer) {
		if minDelay > 0 && maxDelay >= minDelay {
			t.minDelay = minDelay
			t.maxDelay = maxDelay
		}
	}
}

// WithRetryBounds sets the clamp applied to Retry-After values.
func WithRetryBounds(minDelay, maxDelay time.Duration) TimerOption {
	return func(t *CrawlDelayTimer) {
		if minDelay > 0 && maxDelay >= minDelay {
			t.retryMin = minDelay
			t.retryMax = maxDelay
		}
	}
}

// WithSleepChunk sets the longest uninterrupted sleep.
func WithSleepChunk(d time.Duration) TimerOption {
	return func(t *CrawlDelayTimer) {
		if d > 0 {
			t.chunk = d
		}
	}
}

// WithSleeper replaces the sleep primitive, mainly for tests.
func WithSleeper(s Sleeper) TimerOption {
	return func(t *CrawlDelayTimer) {
		if s != nil {
			t.sleep = s
		}
	}
}

// NewCrawlDelayTimer creates a timer. declared is the robots.txt crawl
// delay, or zero when the domain declares none.
func NewCrawlDelayTimer(declared time.Duration, opts ...TimerOption) *CrawlDelayTimer {
	t := &CrawlDelayTimer{
		declared: max(declared, 0),
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		chunk:    DefaultSleepChunk,
		retryMin: DefaultRetryMin,
		retryMax: DefaultRetryMax,
		sleep:    Sleep,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// WaitFetchDelay pauses after a fetch that took elapsed.
func (t *CrawlDelayTimer) WaitFetchDelay(ctx context.Context, elapsed time.Duration) error {
	var d time.Duration
	if t.declared > 0 {
		d = max(t.declared-elapsed, 0)
	} else {
		d = min(max(2*elapsed, t.minDelay), t.maxDelay)
	}

	if err := t.sleepChunked(ctx, d); err != nil {
		return err
	}

	if t.slowDown.Load() {
		return t.sleepChunked(ctx, t.minDelay)
	}
	return nil
}

// WaitRetryDelay marks the domain as asking us to slow down and waits the
// server's Retry-After, clamped to the retry bounds.
func (t *CrawlDelayTimer) WaitRetryDelay(ctx context.Context, retryAfter time.Duration) error {
	t.slowDown.Store(true)
	return t.sleepChunked(ctx, min(max(retryAfter, t.retryMin), t.retryMax))
}

// SlowDown reports whether a rate-limit signal was seen.
func (t *CrawlDelayTimer) SlowDown() bool {
	return t.slowDown.Load()
}

// Declared returns the declared crawl delay, or zero.
func (t *CrawlDelayTimer) Declared() time.Duration {
	return t.declared
}

// MaxWait returns the longest pause WaitFetchDelay can produce.
func (t *CrawlDelayTimer) MaxWait() time.Duration {
	return max(t.declared, t.maxDelay) + t.minDelay
}

func (t *CrawlDelayTimer) sleepChunked(ctx context.Context, d time.Duration) error {
	for d > 0 {
		step := min(d, t.chunk)
		if err := t.sleep(ctx, step); err != nil {
			return err
		}
		d -= step
	}
	return ctx.Err()
}
