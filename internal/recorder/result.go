package recorder

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/warc"
)

// Result is the outcome of a fetch. It is one of OK, Redirect, NotModified,
// Exception or None.
type Result interface {
	isResult()
}

// OK is a completed fetch whose response was archived.
type OK struct {
	// URL is the fetched address.
	URL model.URL
	// IP is the remote address the response came from, if known.
	IP string
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Header is the reconstructed response header.
	Header http.Header
	// Body is the decoded body, cut at the size or time cap.
	Body []byte
	// ContentType is the lower-cased media type without parameters.
	ContentType string
	// Truncation tells whether and why Body is incomplete.
	Truncation warc.Truncation
	// Tags are the validators reported by the server.
	Tags model.ContentTags
	// Duration is the time taken by the fetch.
	Duration time.Duration
}

// Redirect is a 3xx response with a usable Location. The response record
// is archived.
type Redirect struct {
	URL        model.URL
	Location   model.URL
	StatusCode int
}

// NotModified is a 304 answer to a conditional request. Nothing is
// archived; the caller writes a reference copy.
type NotModified struct {
	URL  model.URL
	Tags model.ContentTags
}

// Exception is a fetch that failed. Cause is ErrCrawlerTrap, ErrTimeout,
// a *RateLimitError, a context error or a transport error.
type Exception struct {
	URL   model.URL
	Cause error
}

// None is a fetch that was refused without producing content.
type None struct {
	URL    model.URL
	Reason warc.RefusalReason
}

func (OK) isResult()          {}
func (Redirect) isResult()    {}
func (NotModified) isResult() {}
func (Exception) isResult()   {}
func (None) isResult()        {}

var (
	// ErrCrawlerTrap marks a slow response with almost no content.
	ErrCrawlerTrap = errors.New("suspected crawler trap")

	// ErrTimeout is returned when the server did not answer in time.
	ErrTimeout = errors.New("fetch timed out")

	// ErrBadRedirect is returned for a redirect without a usable Location.
	ErrBadRedirect = errors.New("redirect without usable location")
)

// RateLimitError is the cause of an Exception for a 429 response.
type RateLimitError struct {
	// RetryAfter is the delay requested by the server, 0 when absent.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err is a rate-limit signal and returns it.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
