package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// levelFor maps the verbose flag to a minimum level.
func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// trimSource shortens source locations to the file name.
func trimSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

// New returns a secure logger writing format to w. Unknown formats fall
// back to text.
func New(w io.Writer, format string, verbose bool) *slog.Logger {
	if format == FormatJSON {
		return NewSecureJSONLogger(w, verbose)
	}
	return NewSecureLogger(w, verbose)
}

// NewSecureLogger creates a logger with colored console output that
// sanitizes sensitive information. Colors are disabled unless w is a
// terminal. Verbose mode logs at debug level with source locations;
// otherwise from info.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		AddSource:   verbose,
		Level:       levelFor(verbose),
		ReplaceAttr: trimSource,
		TimeFormat:  time.TimeOnly,
		NoColor:     !isTerminal(w),
	})
	return slog.New(NewSecureHandler(handler))
}

// NewSecureJSONLogger creates a logger that outputs one JSON object per
// line, for log aggregation. Sensitive values are sanitized.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource:   verbose,
		Level:       levelFor(verbose),
		ReplaceAttr: trimSource,
	})
	return slog.New(NewSecureHandler(handler))
}

// isTerminal reports whether w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
