package report

import (
	"io"

	"github.com/nao1215/warcrawl/internal/model"
)

// Writer defines the interface for report output.
// Implementations write the reports of a crawl batch in various formats.
type Writer interface {
	// Write outputs the reports to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(reports []*model.AttemptReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the reports to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(reports []*model.AttemptReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// archiveName returns the archive path or a dash.
func archiveName(r *model.AttemptReport) string {
	if r.ArchivePath == "" {
		return "-"
	}
	return r.ArchivePath
}
