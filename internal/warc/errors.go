package warc

import "errors"

var (
	// ErrNotWARC is returned when a file does not start with a WARC record.
	ErrNotWARC = errors.New("not a WARC file")

	// ErrMalformedRecord is returned for a record header that cannot be parsed.
	ErrMalformedRecord = errors.New("malformed WARC record")

	// ErrWriterClosed is returned when writing to a closed Writer.
	ErrWriterClosed = errors.New("warc writer is closed")

	// ErrUnknownAlgorithm is returned for an unsupported digest algorithm.
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

	// ErrDigestMismatch is returned by Verify when a stored digest does not
	// match the record content.
	ErrDigestMismatch = errors.New("digest mismatch")
)
