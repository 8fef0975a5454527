package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/warcrawl/internal/model"
)

// MarkdownWriter outputs reports in GitHub-flavored Markdown with a
// termination pie chart, suitable for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the reports in Markdown format.
func (w *MarkdownWriter) Write(reports []*model.AttemptReport) (int, error) {
	attempts := nonNil(reports)
	summary := Summarize(attempts)

	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Report")
	md.PlainText("")

	w.writeSummary(md, summary)
	w.writeAttempts(md, attempts)
	w.writeFailures(md, attempts)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeSummary writes the totals table, chart and alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Domains", strconv.Itoa(s.Domains)},
			{"Succeeded", strconv.Itoa(s.Succeeded)},
			{"Fetched", strconv.Itoa(s.Fetched)},
			{"Revisited", strconv.Itoa(s.Revisited)},
			{"Retained", strconv.Itoa(s.Retained)},
			{"Errors", strconv.Itoa(s.Errors)},
			{"Refusals", strconv.Itoa(s.Refusals)},
			{"Crawl Time", s.Duration.Round(time.Second).String()},
		},
	})
	md.PlainText("")

	if s.Domains > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of termination reasons.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Termination Reasons"),
		piechart.WithShowData(true),
	)
	for _, t := range terminationOrder {
		if n := s.ByTermination[t]; n > 0 {
			chart.LabelAndIntValue(terminationLabel(t), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst outcome of the batch.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s Summary) {
	switch {
	case s.ByTermination[model.TerminationFailed] > 0:
		md.Cautionf("%d attempt(s) failed on archive I/O. Check disk space and permissions.",
			s.ByTermination[model.TerminationFailed])
	case s.Failed() > 0:
		md.Warningf("%d domain(s) were rejected by the probe.", s.Failed())
	case s.ByTermination[model.TerminationErrors] > 0:
		md.Importantf("%d attempt(s) stopped at the error ceiling.", s.ByTermination[model.TerminationErrors])
	case s.Domains == 0:
		md.Note("No domains were crawled.")
	default:
		md.Tip("All domains were crawled.")
	}
	md.PlainText("")
}

// writeAttempts writes one table row per attempt.
func (w *MarkdownWriter) writeAttempts(md *markdown.Markdown, attempts []*model.AttemptReport) {
	md.H2("Domains")
	md.PlainText("")

	if len(attempts) == 0 {
		md.PlainText("No attempts.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(attempts))
	for i, r := range attempts {
		rows[i] = []string{
			"`" + r.Domain + "`",
			terminationLabel(r.Termination),
			strconv.Itoa(r.Fetched),
			strconv.Itoa(r.Revisited),
			strconv.Itoa(r.Errors),
			strconv.Itoa(r.Refusals),
			r.Duration().Round(time.Second).String(),
			truncateString(archiveName(r), 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Domain", "Termination", "Fetched", "Revisited", "Errors", "Refusals", "Duration", "Archive"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes collapsible details for failed attempts.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, attempts []*model.AttemptReport) {
	var failed []*model.AttemptReport
	for _, r := range attempts {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")
	for _, r := range failed {
		detail := r.ProbeOutcome
		if r.Error != "" {
			detail = r.Error
		}
		if detail == "" {
			detail = terminationLabel(r.Termination)
		}
		md.Details(r.Domain, detail)
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [warcrawl](https://github.com/nao1215/warcrawl)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
