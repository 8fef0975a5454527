package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// ErrStop ends a pipeline run without failing it. Finally steps still run.
var ErrStop = errors.New("pipeline stopped")

// Step is one stage of a pipeline operating on state of type T.
type Step[T any] interface {
	// Do executes the step. Returning ErrStop skips the remaining steps.
	Do(ctx context.Context, state T) error

	// Name returns the step's name for logging purposes.
	Name() string
}

type funcStep[T any] struct {
	name string
	fn   func(ctx context.Context, state T) error
}

func (s funcStep[T]) Do(ctx context.Context, state T) error { return s.fn(ctx, state) }
func (s funcStep[T]) Name() string                          { return s.name }

// NewStep wraps a function as a Step.
func NewStep[T any](name string, fn func(ctx context.Context, state T) error) Step[T] {
	return funcStep[T]{name: name, fn: fn}
}

type options struct {
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithContinueOnError keeps running later steps after a step fails.
// The first error is still returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(o *options) {
		o.continueOnError = continueOnError
	}
}

// Pipeline executes steps in sequence.
type Pipeline[T any] struct {
	steps   []Step[T]
	finally []Step[T]
	opts    options
}

// New creates an empty pipeline.
func New[T any](opts ...Option) *Pipeline[T] {
	p := &Pipeline[T]{}
	for _, opt := range opts {
		opt(&p.opts)
	}
	if p.opts.logger == nil {
		p.opts.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline[T]) AddStep(step Step[T]) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline[T]) AddSteps(steps ...Step[T]) {
	p.steps = append(p.steps, steps...)
}

// Finally appends a step that runs after the others however they ended.
func (p *Pipeline[T]) Finally(step Step[T]) {
	p.finally = append(p.finally, step)
}

// Execute runs all steps. The context is checked before each step; a
// cancelled run skips the remaining regular steps and returns ctx.Err()
// after the Finally steps. Errors from Finally steps are joined to the
// result.
func (p *Pipeline[T]) Execute(ctx context.Context, state T) error {
	logger := p.opts.logger
	var firstErr error

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", err,
			)
			firstErr = err
			break
		}

		logger.Debug("executing step", "step", step.Name())

		err := step.Do(ctx, state)
		if errors.Is(err, ErrStop) {
			logger.Debug("pipeline stopped", "step", step.Name())
			break
		}
		if err != nil {
			logger.Error("step failed",
				"step", step.Name(),
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			if !p.opts.continueOnError {
				break
			}
		}
	}

	var finalErrs []error
	for _, step := range p.finally {
		if err := step.Do(context.WithoutCancel(ctx), state); err != nil {
			logger.Error("final step failed",
				"step", step.Name(),
				"error", err,
			)
			finalErrs = append(finalErrs, err)
		}
	}

	if len(finalErrs) > 0 {
		return errors.Join(append([]error{firstErr}, finalErrs...)...)
	}
	return firstErr
}

// StepCount returns the number of regular and final steps.
func (p *Pipeline[T]) StepCount() int {
	return len(p.steps) + len(p.finally)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline[T]) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finally {
		names = append(names, step.Name())
	}
	return names
}
