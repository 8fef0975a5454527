package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/warcrawl/internal/model"
)

func specs(domains ...string) []model.CrawlSpec {
	out := make([]model.CrawlSpec, len(domains))
	for i, d := range domains {
		out[i] = model.NewCrawlSpec(d, 10)
	}
	return out
}

func okRunner() RunnerFunc {
	return func(_ context.Context, spec model.CrawlSpec) (*model.AttemptReport, error) {
		r := model.NewAttemptReport(spec.Domain)
		r.Fetched = 1
		r.Termination = model.TerminationExhausted
		return r, nil
	}
}

func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(okRunner())
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(okRunner(), WithConcurrency(0))
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
	})
}

func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("keeps spec order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(okRunner(), WithConcurrency(3))
		reports, err := bp.ProcessBatch(context.Background(), specs("a.example", "b.example", "c.example", "d.example"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, want := range []string{"a.example", "b.example", "c.example", "d.example"} {
			if reports[i] == nil || reports[i].Domain != want {
				t.Errorf("report %d = %+v, want domain %s", i, reports[i], want)
			}
		}
	})

	t.Run("failures become reports", func(t *testing.T) {
		t.Parallel()

		runner := RunnerFunc(func(_ context.Context, spec model.CrawlSpec) (*model.AttemptReport, error) {
			if spec.Domain == "bad.example" {
				return nil, errors.New("disk full")
			}
			return okRunner()(context.Background(), spec)
		})

		reports, err := NewBatchProcessor(runner).ProcessBatch(context.Background(), specs("good.example", "bad.example"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reports[0].Error != "" {
			t.Errorf("unexpected error on good domain: %s", reports[0].Error)
		}
		if reports[1].Error != "disk full" {
			t.Errorf("expected error to be recorded, got %q", reports[1].Error)
		}
		if reports[1].Termination != model.TerminationFailed {
			t.Errorf("expected failed termination, got %s", reports[1].Termination)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		runner := RunnerFunc(func(_ context.Context, spec model.CrawlSpec) (*model.AttemptReport, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return model.NewAttemptReport(spec.Domain), nil
		})

		bp := NewBatchProcessor(runner, WithConcurrency(2))
		if _, err := bp.ProcessBatch(context.Background(), specs("a", "b", "c", "d", "e", "f")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("peak concurrency %d exceeds limit 2", peak.Load())
		}
	})

	t.Run("cancelled batch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		reports, err := NewBatchProcessor(okRunner()).ProcessBatch(ctx, specs("a", "b"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		for i, r := range reports {
			if r != nil {
				t.Errorf("report %d should not have started", i)
			}
		}
	})
}

func TestBatchProcessorCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[int]string{}

	err := NewBatchProcessor(okRunner()).ProcessBatchWithCallback(context.Background(), specs("x", "y"),
		func(report *model.AttemptReport, index int) {
			mu.Lock()
			defer mu.Unlock()
			seen[index] = report.Domain
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen[0] != "x" || seen[1] != "y" {
		t.Errorf("unexpected callbacks: %v", seen)
	}
}
