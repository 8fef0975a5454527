package warc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
)

var headerEnd = []byte("\r\n\r\n")

// PayloadOffset returns the offset of the body within an HTTP message
// block, or len(block) when the block has no header terminator.
func PayloadOffset(block []byte) int {
	i := bytes.Index(block, headerEnd)
	if i < 0 {
		return len(block)
	}
	return i + len(headerEnd)
}

// ParseResponse splits a stored HTTP response block into the response
// (with Body already consumed) and its payload.
func ParseResponse(block []byte) (*http.Response, []byte, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(block)), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	defer resp.Body.Close()

	body := block[PayloadOffset(block):]
	// Drain so a malformed length does not leave the response half-read.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp, body, nil
}

// Verify recomputes the digests stored on rec.
func Verify(rec *Record) error {
	if rec.BlockDigest != "" && !MatchDigest(rec.BlockDigest, rec.Block) {
		return fmt.Errorf("%w: block of %s", ErrDigestMismatch, rec.ID)
	}
	if rec.PayloadDigest != "" && !MatchDigest(rec.PayloadDigest, rec.Payload()) {
		return fmt.Errorf("%w: payload of %s", ErrDigestMismatch, rec.ID)
	}
	return nil
}
