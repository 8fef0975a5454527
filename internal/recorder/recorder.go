// Package recorder fetches documents over HTTP and archives each exchange
// as request and response records, reconstructing the HTTP framing the
// transport does not expose.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/httptrace"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/warc"
)

const (
	// DefaultMaxBodySize caps the decoded body of one fetch.
	DefaultMaxBodySize = 10 << 20
	// DefaultMaxFetchTime caps the wall-clock time of one fetch.
	DefaultMaxFetchTime = 30 * time.Second
	// DefaultTrapMinDuration and DefaultTrapMaxBodySize define a crawler
	// trap: slower than the duration and smaller than the size.
	DefaultTrapMinDuration = 9 * time.Second
	DefaultTrapMaxBodySize = 2 << 10
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "warcrawl/1.0 (+https://github.com/nao1215/warcrawl)"
	// AcceptEncoding lists the encodings the recorder decodes itself.
	AcceptEncoding = "gzip, deflate, br"

	readChunk = 32 << 10
)

// DefaultAcceptTypes are the media types archived when a Request does not
// name its own.
var DefaultAcceptTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"text/plain",
	"application/xml",
	"text/xml",
}

// Request describes one fetch.
type Request struct {
	// URL is the address to fetch.
	URL model.URL
	// Tags, when non-empty, make the request conditional.
	Tags model.ContentTags
	// AcceptTypes lists acceptable media types. "*/*" accepts anything.
	AcceptTypes []string
}

// Recorder performs fetches and appends them to an archive.
// It is owned by a single crawl attempt.
type Recorder struct {
	client          *http.Client
	writer          *warc.Writer
	userAgent       string
	software        string
	maxBodySize     int
	maxFetchTime    time.Duration
	trapMinDuration time.Duration
	trapMaxBodySize int
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *Recorder) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// WithSoftware sets the software name written to warcinfo records.
func WithSoftware(software string) Option {
	return func(r *Recorder) {
		if software != "" {
			r.software = software
		}
	}
}

// WithMaxBodySize sets the body size cap.
func WithMaxBodySize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBodySize = n
		}
	}
}

// WithMaxFetchTime sets the per-fetch time cap.
func WithMaxFetchTime(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.maxFetchTime = d
		}
	}
}

// WithTrapThresholds sets the crawler-trap heuristic thresholds.
func WithTrapThresholds(minDuration time.Duration, maxBodySize int) Option {
	return func(r *Recorder) {
		if minDuration > 0 {
			r.trapMinDuration = minDuration
		}
		if maxBodySize > 0 {
			r.trapMaxBodySize = maxBodySize
		}
	}
}

// WithClock overrides the clock used to time fetches.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a recorder that fetches with client and writes to w.
// Redirects are never followed by the recorder's copy of the client.
func New(client *http.Client, w *warc.Writer, opts ...Option) *Recorder {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	r := &Recorder{
		client:          &c,
		writer:          w,
		userAgent:       DefaultUserAgent,
		software:        "warcrawl",
		maxBodySize:     DefaultMaxBodySize,
		maxFetchTime:    DefaultMaxFetchTime,
		trapMinDuration: DefaultTrapMinDuration,
		trapMaxBodySize: DefaultTrapMaxBodySize,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Writer returns the archive writer.
func (r *Recorder) Writer() *warc.Writer {
	return r.writer
}

// Fetch performs a GET and archives it. The error return is reserved for
// archive write failures; every network outcome is a Result.
func (r *Recorder) Fetch(ctx context.Context, req Request) (Result, error) {
	start := r.now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.maxFetchTime)
	defer cancel()

	var remoteIP string
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			remoteIP = hostOf(info.Conn.RemoteAddr())
		},
	}

	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(fetchCtx, trace), http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return Exception{URL: req.URL, Cause: err}, nil
	}
	accept := req.AcceptTypes
	if len(accept) == 0 {
		accept = DefaultAcceptTypes
	}
	httpReq.Header.Set("User-Agent", r.userAgent)
	httpReq.Header.Set("Accept", strings.Join(accept, ", "))
	httpReq.Header.Set("Accept-Encoding", AcceptEncoding)
	req.Tags.Apply(httpReq.Header)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return r.transportFailure(ctx, req.URL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, readChunk))
		return Exception{URL: req.URL, Cause: &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), r.now())}}, nil
	case http.StatusNotModified:
		return NotModified{URL: req.URL, Tags: model.TagsFromHeader(resp.Header)}, nil
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if isSuccess(resp.StatusCode) && !accepts(accept, contentType) {
		if err := r.RecordRefusal(req.URL, warc.RefusalBadContentType, http.Header{"X-Content-Type": {contentType}}); err != nil {
			return nil, err
		}
		return None{URL: req.URL, Reason: warc.RefusalBadContentType}, nil
	}

	body, payloadDigest, truncation := r.readBody(fetchCtx, resp)
	if ctx.Err() != nil {
		return Exception{URL: req.URL, Cause: ctx.Err()}, nil
	}
	duration := r.now().Sub(start)

	reqRec := &warc.Record{
		Type:        warc.TypeRequest,
		TargetURI:   req.URL.String(),
		ContentType: warc.ContentTypeHTTPRequest,
		Block:       requestBlock(httpReq),
	}
	if err := r.writer.Write(reqRec); err != nil {
		return nil, err
	}

	header := reconstructHeader(resp.Header, len(body))
	head := responseHead(resp.Proto, resp.StatusCode, resp.Status, header)
	blockDigest := warc.NewDigester(r.writer.Algorithm())
	blockDigest.Update(head)
	blockDigest.Update(body)

	block := make([]byte, 0, len(head)+len(body))
	block = append(block, head...)
	block = append(block, body...)
	respRec := &warc.Record{
		Type:          warc.TypeResponse,
		TargetURI:     req.URL.String(),
		IPAddress:     remoteIP,
		ConcurrentTo:  reqRec.ID,
		BlockDigest:   blockDigest.Finish(),
		PayloadDigest: payloadDigest,
		Truncated:     truncation,
		ContentType:   warc.ContentTypeHTTPResponse,
		Block:         block,
	}
	if err := r.writer.Write(respRec); err != nil {
		return nil, err
	}

	r.logger.Debug("fetched",
		slog.String("url", req.URL.String()),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", duration),
		slog.String("truncated", truncation.String()))

	if isRedirect(resp.StatusCode) {
		location := resp.Header.Get("Location")
		loc, err := req.URL.Resolve(location)
		if location == "" || err != nil {
			return Exception{URL: req.URL, Cause: ErrBadRedirect}, nil
		}
		return Redirect{URL: req.URL, Location: loc, StatusCode: resp.StatusCode}, nil
	}

	if duration > r.trapMinDuration && len(body) < r.trapMaxBodySize && req.URL.Path != "/robots.txt" {
		r.logger.Info("suspected crawler trap",
			slog.String("url", req.URL.String()),
			slog.Duration("duration", duration),
			slog.Int("bytes", len(body)))
		return Exception{URL: req.URL, Cause: ErrCrawlerTrap}, nil
	}

	return OK{
		URL:         req.URL,
		IP:          remoteIP,
		StatusCode:  resp.StatusCode,
		Header:      header,
		Body:        body,
		ContentType: contentType,
		Truncation:  truncation,
		Tags:        model.TagsFromHeader(resp.Header),
		Duration:    duration,
	}, nil
}

// readBody decodes and buffers the body up to the size cap, feeding the
// payload digest as it goes. Reading stops early when the fetch deadline
// passes.
func (r *Recorder) readBody(fetchCtx context.Context, resp *http.Response) ([]byte, string, warc.Truncation) {
	digest := warc.NewDigester(r.writer.Algorithm())

	src, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, digest.Finish(), warc.TruncatedUnspecified
	}

	var buf bytes.Buffer
	chunk := make([]byte, readChunk)
	truncation := warc.NotTruncated
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			keep := min(n, r.maxBodySize-buf.Len())
			buf.Write(chunk[:keep])
			digest.Update(chunk[:keep])
			if keep < n {
				truncation = warc.TruncatedLength
				break
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
				truncation = warc.TruncatedTime
			} else {
				truncation = warc.TruncatedUnspecified
			}
			break
		}
	}
	return buf.Bytes(), digest.Finish(), truncation
}

func (r *Recorder) transportFailure(ctx context.Context, u model.URL, err error) (Result, error) {
	if ctx.Err() != nil {
		return Exception{URL: u, Cause: ctx.Err()}, nil
	}
	if isTimeout(err) {
		if werr := r.RecordRefusal(u, warc.RefusalProbeTimeout, nil); werr != nil {
			return nil, werr
		}
		return Exception{URL: u, Cause: ErrTimeout}, nil
	}
	if werr := r.RecordRefusal(u, warc.RefusalUnspecifiedError, http.Header{"X-Error": {err.Error()}}); werr != nil {
		return nil, werr
	}
	return Exception{URL: u, Cause: err}, nil
}

// RecordReferenceCopy archives a response synthesized from an earlier
// crawl. The validators in header are replaced by the non-empty tags.
func (r *Recorder) RecordReferenceCopy(u model.URL, contentType string, status int, body []byte, header http.Header, tags model.ContentTags) error {
	h := reconstructHeader(header, len(body))
	if contentType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentType)
	}
	tags.WriteTo(h)

	head := responseHead("HTTP/1.1", status, "", h)
	block := make([]byte, 0, len(head)+len(body))
	block = append(block, head...)
	block = append(block, body...)

	return r.writer.Write(&warc.Record{
		Type:          warc.TypeReferenceResponse,
		TargetURI:     u.String(),
		PayloadDigest: warc.Digest(r.writer.Algorithm(), body),
		ContentType:   warc.ContentTypeHTTPResponse,
		Block:         block,
	})
}

// RecordRefusal archives a URL that was not fetched, with a reason.
func (r *Recorder) RecordRefusal(u model.URL, reason warc.RefusalReason, extra http.Header) error {
	if !reason.IsValid() {
		reason = warc.RefusalUnspecifiedError
	}
	return r.writer.Write(&warc.Record{
		Type:          warc.TypeRefusal,
		TargetURI:     u.String(),
		RefusalReason: reason,
		Header:        extra,
	})
}

// RecordInfo writes the warcinfo record that opens every archive.
func (r *Recorder) RecordInfo(ip, domain, probeOutcome string) error {
	hostname, _ := os.Hostname()
	fields := [][2]string{
		{"software", r.software},
		{"format", "WARC File Format 1.1"},
		{"hostname", hostname},
		{"http-header-user-agent", r.userAgent},
		{"domain", domain},
		{"ip", ip},
		{"probe", probeOutcome},
	}

	var buf bytes.Buffer
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", f[0], f[1])
	}
	return r.writer.Write(&warc.Record{
		Type:        warc.TypeInfo,
		ContentType: warc.ContentTypeWARCFields,
		Block:       buf.Bytes(),
	})
}

// Replay copies a record from another archive unchanged.
func (r *Recorder) Replay(rec *warc.Record) error {
	cp := *rec
	return r.writer.Write(&cp)
}

// requestBlock reconstructs the request line and headers as sent.
func requestBlock(req *http.Request) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())
	fmt.Fprintf(&buf, "Host: %s\r\n", req.URL.Host)
	_ = req.Header.WriteSubset(&buf, nil)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// reconstructHeader drops the wire framing headers that no longer describe
// the decoded body and sets its real length.
func reconstructHeader(src http.Header, bodyLen int) http.Header {
	h := src.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Content-Encoding")
	h.Del("Transfer-Encoding")
	h.Set("Content-Length", strconv.Itoa(bodyLen))
	return h
}

func responseHead(proto string, code int, status string, h http.Header) []byte {
	if proto == "" || strings.HasPrefix(proto, "HTTP/2") || strings.HasPrefix(proto, "HTTP/3") {
		proto = "HTTP/1.1"
	}
	if status == "" {
		status = strconv.Itoa(code) + " " + http.StatusText(code)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s\r\n", proto, status)
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, strings.NewReplacer("\r", " ", "\n", " ").Replace(v))
		}
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func accepts(accept []string, contentType string) bool {
	for _, a := range accept {
		if a == "*/*" || a == contentType {
			return true
		}
	}
	return false
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
