package recorder

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody wraps body with decoders for the Content-Encoding chain.
// Unknown encodings are passed through untouched.
func decodeBody(body io.Reader, contentEncoding string) (io.Reader, error) {
	encodings := strings.Split(contentEncoding, ",")
	r := body
	// Encodings are listed in the order they were applied.
	for i := len(encodings) - 1; i >= 0; i-- {
		switch strings.ToLower(strings.TrimSpace(encodings[i])) {
		case "gzip", "x-gzip":
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			r = gz
		case "deflate":
			r = newDeflateReader(r)
		case "br":
			r = brotli.NewReader(r)
		}
	}
	return r, nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams, since
// servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}
