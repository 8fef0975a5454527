package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/warcrawl/internal/model"
)

// DefaultConcurrency is the number of domains crawled at once.
const DefaultConcurrency = 10

// Runner performs one crawl attempt.
type Runner interface {
	Crawl(ctx context.Context, spec model.CrawlSpec) (*model.AttemptReport, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, spec model.CrawlSpec) (*model.AttemptReport, error)

// Crawl implements Runner.
func (f RunnerFunc) Crawl(ctx context.Context, spec model.CrawlSpec) (*model.AttemptReport, error) {
	return f(ctx, spec)
}

// BatchProcessor crawls many domains concurrently, one worker per domain.
type BatchProcessor struct {
	runner      Runner
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent attempts.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor around runner.
func NewBatchProcessor(runner Runner, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:      runner,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch crawls every spec and returns the reports in spec order.
// A failed attempt still yields a report carrying the error. Specs not
// started before cancellation have a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, specs []model.CrawlSpec) ([]*model.AttemptReport, error) {
	results := make([]*model.AttemptReport, len(specs))
	err := bp.ProcessBatchWithCallback(ctx, specs, func(report *model.AttemptReport, index int) {
		// each index is written by exactly one goroutine
		results[index] = report
	})
	return results, err
}

// ProcessBatchWithCallback crawls every spec and calls callback as each
// attempt finishes. The callback runs on the worker goroutine.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	specs []model.CrawlSpec,
	callback func(report *model.AttemptReport, index int),
) error {
	bp.logger.Info("starting batch",
		"total_domains", len(specs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("crawling domain",
				"domain", spec.Domain,
				"index", i+1,
				"total", len(specs),
			)

			report, err := bp.runner.Crawl(ctx, spec)
			if report == nil {
				report = model.NewAttemptReport(spec.Domain)
				report.FinishedAt = time.Now()
				report.Termination = model.TerminationFailed
			}
			if err != nil {
				report.Error = err.Error()
				bp.logger.Warn("crawl failed",
					"domain", spec.Domain,
					"error", err,
				)
			} else {
				bp.logger.Info("crawl completed",
					"domain", spec.Domain,
					"fetched", report.Fetched,
					"termination", report.Termination.String(),
				)
			}

			callback(report, i)
			// Failures stay in the report so other domains keep running.
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"total_domains", len(specs),
		"elapsed", time.Since(startTime),
	)
	return err
}
