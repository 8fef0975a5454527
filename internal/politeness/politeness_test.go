package politeness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records requested sleeps without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	slices []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slices = append(r.slices, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, d := range r.slices {
		sum += d
	}
	return sum
}

func (r *recordingSleeper) reset() {
	r.mu.Lock()
	r.slices = nil
	r.mu.Unlock()
}

func TestWaitFetchDelay_Synthesized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{name: "fast server clamps to min", elapsed: 100 * time.Millisecond, want: time.Second},
		{name: "medium server doubles", elapsed: 800 * time.Millisecond, want: 1600 * time.Millisecond},
		{name: "slow server clamps to max", elapsed: 10 * time.Second, want: 2500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recordingSleeper{}
			timer := NewCrawlDelayTimer(0, WithSleeper(rec.sleep))
			require.NoError(t, timer.WaitFetchDelay(context.Background(), tt.elapsed))
			assert.Equal(t, tt.want, rec.total())
		})
	}
}

func TestWaitFetchDelay_Declared(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	timer := NewCrawlDelayTimer(12*time.Second, WithSleeper(rec.sleep))

	require.NoError(t, timer.WaitFetchDelay(context.Background(), time.Second))
	assert.Equal(t, 11*time.Second, rec.total())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, time.Second}, rec.slices)

	rec.reset()
	require.NoError(t, timer.WaitFetchDelay(context.Background(), 20*time.Second))
	assert.Zero(t, rec.total())
}

func TestWaitFetchDelay_Bounds(t *testing.T) {
	t.Parallel()

	declaredDelays := []time.Duration{0, 500 * time.Millisecond, 3 * time.Second, 17 * time.Second}
	elapsedTimes := []time.Duration{0, time.Millisecond, 900 * time.Millisecond, 4 * time.Second, time.Minute}

	for _, declared := range declaredDelays {
		for _, elapsed := range elapsedTimes {
			for _, slow := range []bool{false, true} {
				rec := &recordingSleeper{}
				timer := NewCrawlDelayTimer(declared, WithSleeper(rec.sleep))
				if slow {
					require.NoError(t, timer.WaitRetryDelay(context.Background(), 0))
					rec.reset()
				}
				require.NoError(t, timer.WaitFetchDelay(context.Background(), elapsed))

				limit := max(declared, DefaultMaxDelay) + DefaultMinDelay
				assert.LessOrEqual(t, rec.total(), limit,
					"declared=%s elapsed=%s slow=%v", declared, elapsed, slow)
				for _, d := range rec.slices {
					assert.LessOrEqual(t, d, DefaultSleepChunk)
				}
			}
		}
	}
}

func TestWaitRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryAfter time.Duration
		want       time.Duration
	}{
		{name: "ten seconds clamps to five", retryAfter: 10 * time.Second, want: 5 * time.Second},
		{name: "zero clamps to one", retryAfter: 0, want: time.Second},
		{name: "in range is honored", retryAfter: 3 * time.Second, want: 3 * time.Second},
		{name: "an hour is ignored", retryAfter: time.Hour, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &recordingSleeper{}
			timer := NewCrawlDelayTimer(0, WithSleeper(rec.sleep))
			assert.False(t, timer.SlowDown())

			require.NoError(t, timer.WaitRetryDelay(context.Background(), tt.retryAfter))
			assert.True(t, timer.SlowDown())
			assert.Equal(t, tt.want, rec.total())
		})
	}
}

func TestSlowDown_IsSticky(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	timer := NewCrawlDelayTimer(0, WithSleeper(rec.sleep))

	require.NoError(t, timer.WaitRetryDelay(context.Background(), 10*time.Second))
	rec.reset()

	for range 3 {
		require.NoError(t, timer.WaitFetchDelay(context.Background(), 100*time.Millisecond))
	}
	// each wait is min delay plus the slow-down increment
	assert.Equal(t, 6*time.Second, rec.total())
}

func TestWaitFetchDelay_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	timer := NewCrawlDelayTimer(30 * time.Second)
	start := time.Now()
	err := timer.WaitFetchDelay(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLaunchThrottle(t *testing.T) {
	t.Parallel()

	t.Run("staggers launches", func(t *testing.T) {
		t.Parallel()

		throttle := NewLaunchThrottle(40 * time.Millisecond)
		start := time.Now()
		for range 3 {
			require.NoError(t, throttle.AwaitPermission(context.Background()))
		}
		assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	})

	t.Run("first launch is immediate", func(t *testing.T) {
		t.Parallel()

		throttle := NewLaunchThrottle(time.Hour)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, throttle.AwaitPermission(ctx))
	})

	t.Run("cancellation returns promptly", func(t *testing.T) {
		t.Parallel()

		throttle := NewLaunchThrottle(time.Hour)
		require.NoError(t, throttle.AwaitPermission(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		assert.Error(t, throttle.AwaitPermission(ctx))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("disabled throttle never waits", func(t *testing.T) {
		t.Parallel()

		throttle := NewLaunchThrottle(0)
		for range 100 {
			require.NoError(t, throttle.AwaitPermission(context.Background()))
		}
	})

	t.Run("concurrent workers are serialized", func(t *testing.T) {
		t.Parallel()

		throttle := NewLaunchThrottle(20 * time.Millisecond)
		var wg sync.WaitGroup
		start := time.Now()
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, throttle.AwaitPermission(context.Background()))
			}()
		}
		wg.Wait()
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})
}
