package warc

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer appends records to an archive file. When the path ends in ".gz"
// every record is written as its own gzip member, so a reader can recover
// all complete records after a crash.
type Writer struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	compress bool
	algo     Algorithm
	now      func() time.Time
	count    int
	closed   bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithDigestAlgorithm sets the digest algorithm for records written
// without a block digest.
func WithDigestAlgorithm(a Algorithm) WriterOption {
	return func(w *Writer) {
		if a != "" {
			w.algo = a
		}
	}
}

// WithClock overrides the clock used for WARC-Date.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// Create creates (or truncates) the archive at path, creating parent
// directories as needed.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	w := &Writer{
		f:        f,
		path:     path,
		compress: strings.HasSuffix(path, ".gz"),
		algo:     DefaultAlgorithm,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// NewRecordID returns a fresh "<urn:uuid:...>" identifier.
func NewRecordID() string {
	return "<urn:uuid:" + uuid.NewString() + ">"
}

// Write appends rec. A missing ID, Date or BlockDigest is filled in and
// stored back into rec, so callers can reference rec.ID afterwards.
func (w *Writer) Write(rec *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	if !rec.Type.IsValid() {
		return fmt.Errorf("%w: record type %q", ErrMalformedRecord, rec.Type)
	}
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	if rec.Date.IsZero() {
		rec.Date = w.now()
	}
	if rec.BlockDigest == "" {
		rec.BlockDigest = Digest(w.algo, rec.Block)
	}

	data := encode(rec)
	if w.compress {
		gz := gzip.NewWriter(w.f)
		if _, err := gz.Write(data); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	} else if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	w.count++
	return nil
}

// Path returns the archive path.
func (w *Writer) Path() string {
	return w.path
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Algorithm returns the digest algorithm of the writer.
func (w *Writer) Algorithm() Algorithm {
	return w.algo
}

// Close syncs and closes the file. Closing twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

func encode(rec *Record) []byte {
	var buf bytes.Buffer
	buf.Grow(len(rec.Block) + 512)

	buf.WriteString(Version)
	buf.WriteString("\r\n")
	field := func(name, value string) {
		if value == "" {
			return
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(sanitize(value))
		buf.WriteString("\r\n")
	}

	field(FieldType, string(rec.Type))
	field(FieldRecordID, rec.ID)
	field(FieldDate, rec.Date.UTC().Format(dateLayout))
	field(FieldTargetURI, rec.TargetURI)
	field(FieldIPAddress, rec.IPAddress)
	field(FieldConcurrentTo, rec.ConcurrentTo)
	field(FieldRefersTo, rec.RefersTo)
	field(FieldBlockDigest, rec.BlockDigest)
	field(FieldPayloadDigest, rec.PayloadDigest)
	field(FieldTruncated, string(rec.Truncated))
	field(FieldRefusalReason, string(rec.RefusalReason))
	field(FieldContentType, rec.ContentType)

	names := make([]string, 0, len(rec.Header))
	for name := range rec.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range rec.Header[name] {
			field(name, v)
		}
	}

	field(FieldContentLength, strconv.Itoa(len(rec.Block)))
	buf.WriteString("\r\n")
	buf.Write(rec.Block)
	buf.WriteString("\r\n\r\n")
	return buf.Bytes()
}

// sanitize keeps a field value on one line.
func sanitize(v string) string {
	if !strings.ContainsAny(v, "\r\n") {
		return v
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
