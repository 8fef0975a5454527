package pipeline

import (
	"context"
	"errors"
	"testing"
)

type state struct {
	order []string
}

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, s *state) error
	callCount int
}

func (m *mockStep) Do(ctx context.Context, s *state) error {
	m.callCount++
	s.order = append(s.order, m.name)
	if m.doFunc != nil {
		return m.doFunc(ctx, s)
	}
	return nil
}

func (m *mockStep) Name() string {
	return m.name
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New[*state]()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.opts.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New[*state](WithContinueOnError(true))
		if !p.opts.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New[*state]()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})
	p.Finally(&mockStep{name: "last"})

	want := []string{"first", "second", "third", "last"}
	got := p.StepNames()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	tests := []struct {
		name            string
		continueOnError bool
		second          func(context.Context, *state) error
		wantOrder       []string
		wantErr         error
	}{
		{
			name:      "runs all steps in order",
			wantOrder: []string{"a", "b", "c", "final"},
		},
		{
			name:      "stop skips remaining steps",
			second:    func(context.Context, *state) error { return ErrStop },
			wantOrder: []string{"a", "b", "final"},
		},
		{
			name:      "error stops by default",
			second:    func(context.Context, *state) error { return errBoom },
			wantOrder: []string{"a", "b", "final"},
			wantErr:   errBoom,
		},
		{
			name:            "continue on error",
			continueOnError: true,
			second:          func(context.Context, *state) error { return errBoom },
			wantOrder:       []string{"a", "b", "c", "final"},
			wantErr:         errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := New[*state](WithContinueOnError(tt.continueOnError))
			p.AddSteps(
				&mockStep{name: "a"},
				&mockStep{name: "b", doFunc: tt.second},
				&mockStep{name: "c"},
			)
			p.Finally(&mockStep{name: "final"})

			s := &state{}
			err := p.Execute(context.Background(), s)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
			if len(s.order) != len(tt.wantOrder) {
				t.Fatalf("order = %v, want %v", s.order, tt.wantOrder)
			}
			for i := range tt.wantOrder {
				if s.order[i] != tt.wantOrder[i] {
					t.Errorf("order = %v, want %v", s.order, tt.wantOrder)
					break
				}
			}
		})
	}
}

func TestPipelineCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var finalSawCancel bool
	p := New[*state]()
	p.AddStep(NewStep("cancel", func(context.Context, *state) error {
		cancel()
		return nil
	}))
	p.AddStep(&mockStep{name: "skipped"})
	p.Finally(NewStep("final", func(ctx context.Context, s *state) error {
		finalSawCancel = ctx.Err() != nil
		s.order = append(s.order, "final")
		return nil
	}))

	s := &state{}
	err := p.Execute(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(s.order) != 1 || s.order[0] != "final" {
		t.Errorf("order = %v, want [final]", s.order)
	}
	if finalSawCancel {
		t.Error("final steps should run with a context that is not cancelled")
	}
}

func TestPipelineFinallyErrorsAreJoined(t *testing.T) {
	t.Parallel()

	errStep := errors.New("step")
	errClose := errors.New("close")

	p := New[*state]()
	p.AddStep(NewStep("fail", func(context.Context, *state) error { return errStep }))
	p.Finally(NewStep("close", func(context.Context, *state) error { return errClose }))

	err := p.Execute(context.Background(), &state{})
	if !errors.Is(err, errStep) || !errors.Is(err, errClose) {
		t.Errorf("expected both errors, got %v", err)
	}
}
