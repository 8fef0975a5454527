package report

import (
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/warcrawl/internal/model"
)

// terminationOrder fixes the order in which terminations are listed.
var terminationOrder = []model.Termination{
	model.TerminationExhausted,
	model.TerminationDepth,
	model.TerminationErrors,
	model.TerminationCancelled,
	model.TerminationProbe,
	model.TerminationFailed,
	model.TerminationUnknown,
}

// Summary aggregates a batch of attempt reports.
type Summary struct {
	// Domains is the number of attempts summarized.
	Domains int `json:"domains"`

	// Succeeded counts attempts that got past the probe and kept an archive.
	Succeeded int `json:"succeeded"`

	Fetched   int `json:"fetched"`
	Revisited int `json:"revisited"`
	Retained  int `json:"retained"`
	Resynced  int `json:"resynced"`
	Errors    int `json:"errors"`
	Refusals  int `json:"refusals"`

	// Duration is the summed wall-clock time of all attempts.
	Duration time.Duration `json:"duration_ns"`

	// ByTermination counts attempts per termination reason.
	ByTermination map[model.Termination]int `json:"by_termination"`
}

// Summarize aggregates reports. Nil entries are skipped.
func Summarize(reports []*model.AttemptReport) Summary {
	s := Summary{ByTermination: make(map[model.Termination]int)}
	for _, r := range reports {
		if r == nil {
			continue
		}
		s.Domains++
		if r.Succeeded() {
			s.Succeeded++
		}
		s.Fetched += r.Fetched
		s.Revisited += r.Revisited
		s.Retained += r.Retained
		s.Resynced += r.Resynced
		s.Errors += r.Errors
		s.Refusals += r.Refusals
		s.Duration += r.Duration()
		s.ByTermination[model.ParseTermination(string(r.Termination))]++
	}
	return s
}

// Failed returns the number of attempts that did not succeed.
func (s Summary) Failed() int {
	return s.Domains - s.Succeeded
}

// terminationLabel renders a termination as a heading-style label.
func terminationLabel(t model.Termination) string {
	return cases.Title(language.English).String(t.String())
}

// nonNil drops nil reports.
func nonNil(reports []*model.AttemptReport) []*model.AttemptReport {
	out := make([]*model.AttemptReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
