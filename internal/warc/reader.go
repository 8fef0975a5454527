package warc

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MaxBlockSize is the largest record block a Reader accepts. A longer
// Content-Length is treated as a corrupt record.
const MaxBlockSize = 1 << 30

// knownFields are decoded into Record fields and not copied to Header.
var knownFields = map[string]bool{
	textproto.CanonicalMIMEHeaderKey(FieldType):          true,
	textproto.CanonicalMIMEHeaderKey(FieldRecordID):      true,
	textproto.CanonicalMIMEHeaderKey(FieldDate):          true,
	textproto.CanonicalMIMEHeaderKey(FieldTargetURI):     true,
	textproto.CanonicalMIMEHeaderKey(FieldIPAddress):     true,
	textproto.CanonicalMIMEHeaderKey(FieldConcurrentTo):  true,
	textproto.CanonicalMIMEHeaderKey(FieldRefersTo):      true,
	textproto.CanonicalMIMEHeaderKey(FieldBlockDigest):   true,
	textproto.CanonicalMIMEHeaderKey(FieldPayloadDigest): true,
	textproto.CanonicalMIMEHeaderKey(FieldTruncated):     true,
	textproto.CanonicalMIMEHeaderKey(FieldRefusalReason): true,
	textproto.CanonicalMIMEHeaderKey(FieldContentType):   true,
	textproto.CanonicalMIMEHeaderKey(FieldContentLength): true,
}

// Reader iterates over the records of an archive. A truncated or corrupt
// final record ends the iteration; Truncated reports whether that happened.
type Reader struct {
	closer    io.Closer
	br        *bufio.Reader
	tp        *textproto.Reader
	started   bool
	truncated bool
	done      bool
}

// Open opens an archive file. Gzip compression is detected from the
// content, not the file name.
func Open(path string) (*Reader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// NewReader reads records from src.
func NewReader(src io.Reader) *Reader {
	br := bufio.NewReader(src)
	r := &Reader{}

	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			r.truncated = true
			r.done = true
			r.br = bufio.NewReader(bytes.NewReader(nil))
			return r
		}
		br = bufio.NewReader(gz)
	}
	r.br = br
	r.tp = textproto.NewReader(br)
	return r
}

// Next returns the next record, or io.EOF at the end of the archive.
func (r *Reader) Next() (*Record, error) {
	if r.done {
		return nil, io.EOF
	}
	rec, err := r.next()
	if err == nil {
		r.started = true
		return rec, nil
	}
	r.done = true
	if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	if !r.started && errors.Is(err, ErrNotWARC) {
		return nil, err
	}
	r.truncated = true
	return nil, io.EOF
}

func (r *Reader) next() (*Record, error) {
	line, err := r.versionLine()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "WARC/") {
		return nil, fmt.Errorf("%w: unexpected line %q", ErrNotWARC, truncate(line, 32))
	}

	hdr, err := r.tp.ReadMIMEHeader()
	if err != nil {
		return nil, unexpected(err)
	}
	length, err := strconv.ParseInt(hdr.Get(FieldContentLength), 10, 64)
	if err != nil || length < 0 || length > MaxBlockSize {
		return nil, fmt.Errorf("%w: bad Content-Length", ErrMalformedRecord)
	}

	// The buffer grows with the bytes actually read, so a length larger
	// than the rest of the file ends as a truncated tail.
	var block bytes.Buffer
	if _, err := io.CopyN(&block, r.br, length); err != nil {
		return nil, unexpected(err)
	}
	// The record separator is optional on the last record.
	_, _ = r.br.Discard(4)

	rec := &Record{
		Type:          RecordType(hdr.Get(FieldType)),
		ID:            hdr.Get(FieldRecordID),
		TargetURI:     hdr.Get(FieldTargetURI),
		IPAddress:     hdr.Get(FieldIPAddress),
		ConcurrentTo:  hdr.Get(FieldConcurrentTo),
		RefersTo:      hdr.Get(FieldRefersTo),
		BlockDigest:   hdr.Get(FieldBlockDigest),
		PayloadDigest: hdr.Get(FieldPayloadDigest),
		Truncated:     NotTruncated,
		RefusalReason: RefusalReason(hdr.Get(FieldRefusalReason)),
		ContentType:   hdr.Get(FieldContentType),
		Block:         block.Bytes(),
	}
	if v := hdr.Get(FieldTruncated); v != "" {
		rec.Truncated = ParseTruncation(v)
	}
	if d, err := time.Parse(time.RFC3339, hdr.Get(FieldDate)); err == nil {
		rec.Date = d
	}
	for name, values := range hdr {
		if knownFields[name] {
			continue
		}
		if rec.Header == nil {
			rec.Header = http.Header{}
		}
		rec.Header[name] = append(rec.Header[name], values...)
	}
	if !rec.Type.IsValid() {
		return nil, fmt.Errorf("%w: record type %q", ErrMalformedRecord, rec.Type)
	}
	return rec, nil
}

// versionLine skips blank lines and returns the next line. A clean end of
// input is reported as io.EOF.
func (r *Reader) versionLine() (string, error) {
	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" {
				return "", io.EOF
			}
			return "", unexpected(err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
	}
}

// Truncated reports whether the iteration ended on an incomplete record.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ReadAll reads every complete record of the archive at path.
func ReadAll(path string) ([]*Record, bool, error) {
	r, err := Open(path)
	if err != nil {
		return nil, false, err
	}
	defer r.Close()

	var records []*Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, r.Truncated(), nil
		}
		if err != nil {
			return records, false, err
		}
		records = append(records, rec)
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
