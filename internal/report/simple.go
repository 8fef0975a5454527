package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/warcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds probe outcomes, IPs and revisit details per domain.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the reports in human-readable format.
func (w *SimpleWriter) Write(reports []*model.AttemptReport) (int, error) {
	attempts := nonNil(reports)

	var sb strings.Builder
	w.writeHeader(&sb)
	for _, r := range attempts {
		w.writeAttempt(&sb, r)
	}
	w.writeSummary(&sb, Summarize(attempts))
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report banner.
func (w *SimpleWriter) writeHeader(sb *strings.Builder) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          WARCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

// writeAttempt writes one domain block.
func (w *SimpleWriter) writeAttempt(sb *strings.Builder, r *model.AttemptReport) {
	fmt.Fprintf(sb, "[%s] %s\n", w.indicator(r), r.Domain)
	fmt.Fprintf(sb, "    Started:     %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "    Duration:    %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(sb, "    Termination: %s\n", terminationLabel(r.Termination))
	fmt.Fprintf(sb, "    Fetched:     %d (errors %d, refusals %d)\n", r.Fetched, r.Errors, r.Refusals)
	fmt.Fprintf(sb, "    Visited:     %d of %d (queued %d)\n", r.Visited, r.DepthBudget, r.Queued)
	fmt.Fprintf(sb, "    Archive:     %s\n", archiveName(r))

	if w.verbose {
		if r.ProbeOutcome != "" {
			fmt.Fprintf(sb, "    Probe:       %s\n", r.ProbeOutcome)
		}
		if r.IP != "" {
			fmt.Fprintf(sb, "    IP:          %s\n", r.IP)
		}
		if r.Revisited > 0 || r.Resynced > 0 {
			fmt.Fprintf(sb, "    Revisited:   %d (retained %d, resynced %d)\n", r.Revisited, r.Retained, r.Resynced)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(sb, "    Error:       %s\n", r.Error)
	}
	sb.WriteString("\n")
}

// indicator returns a visual marker for the attempt outcome.
func (w *SimpleWriter) indicator(r *model.AttemptReport) string {
	switch r.Termination {
	case model.TerminationExhausted, model.TerminationDepth:
		return "ok"
	case model.TerminationErrors, model.TerminationCancelled:
		return "!"
	case model.TerminationProbe, model.TerminationFailed:
		return "x"
	default:
		return "?"
	}
}

// writeSummary writes the totals section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, s Summary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  DOMAINS:   %d (%d succeeded, %d failed)\n", s.Domains, s.Succeeded, s.Failed())
	fmt.Fprintf(sb, "  FETCHED:   %d\n", s.Fetched)
	fmt.Fprintf(sb, "  REVISITED: %d\n", s.Revisited)
	fmt.Fprintf(sb, "  ERRORS:    %d\n", s.Errors)
	fmt.Fprintf(sb, "  REFUSALS:  %d\n", s.Refusals)
	sb.WriteString("\n")

	for _, t := range terminationOrder {
		if n := s.ByTermination[t]; n > 0 {
			fmt.Fprintf(sb, "  %-10s %d\n", terminationLabel(t)+":", n)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by warcrawl\n")
	sb.WriteString("https://github.com/nao1215/warcrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
