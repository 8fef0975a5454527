// Package prober checks that a domain is reachable and crawlable before a
// crawl attempt commits to it.
package prober

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/nao1215/warcrawl/internal/model"
)

// DefaultTimeout bounds a whole probe, DNS included.
const DefaultTimeout = 15 * time.Second

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// IPBlocklist decides whether an address may be contacted.
type IPBlocklist interface {
	IsIPBlocked(addr netip.Addr) bool
}

// Prober performs the pre-flight check of a domain.
type Prober struct {
	client    *http.Client
	resolver  Resolver
	blocklist IPBlocklist
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(p *Prober) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithIPBlocklist sets the address blocklist.
func WithIPBlocklist(b IPBlocklist) Option {
	return func(p *Prober) {
		p.blocklist = b
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Prober) {
		p.userAgent = ua
	}
}

// WithTimeout sets the probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a prober using client for HTTP.
func New(client *http.Client, opts ...Option) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Prober{
		client:   client,
		resolver: net.DefaultResolver,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks domain using candidate as the first URL to try. Only the
// candidate's scheme, host and port are used; the probe targets the root.
func (p *Prober) Probe(ctx context.Context, domain string, candidate *model.URL) Result {
	if candidate == nil {
		return Error{Status: StatusNoKnownURLs}
	}
	domain = model.NormalizeDomain(domain)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs, err := p.resolve(ctx, candidate.Domain)
	if err != nil {
		if isTimeout(err) {
			return Error{Status: StatusTimeout, Description: err.Error()}
		}
		return Error{Status: StatusUnreachable, Description: err.Error()}
	}
	ip := addrs[0].String()
	for _, addr := range addrs {
		if p.blocklist != nil && p.blocklist.IsIPBlocked(addr) {
			return Error{Status: StatusBlocked, Description: addr.String(), IP: addr.String()}
		}
	}

	root := candidate.Root()
	res := p.probeRoot(ctx, domain, root, ip)
	if e, ok := res.(Error); ok && e.Status == StatusUnreachable && root.Scheme == "https" {
		p.logger.Debug("https probe failed, retrying over http",
			slog.String("domain", domain),
			slog.String("error", e.Description))
		return p.probeRoot(ctx, domain, root.WithScheme("http"), ip)
	}
	return res
}

func (p *Prober) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, err := p.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("failed to resolve %s: no addresses", host)
	}
	return addrs, nil
}

// probeRoot issues HEAD (GET when HEAD is refused) and follows redirects
// while they stay on domain.
func (p *Prober) probeRoot(ctx context.Context, domain string, root model.URL, ip string) Result {
	resp, err := p.request(ctx, http.MethodHead, domain, root)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp, err = p.request(ctx, http.MethodGet, domain, root)
	}
	if err != nil {
		if isTimeout(err) {
			return Error{Status: StatusTimeout, Description: err.Error(), IP: ip}
		}
		return Error{Status: StatusUnreachable, Description: err.Error(), IP: ip}
	}

	final, err := model.FromNetURL(resp.Request.URL)
	if err != nil {
		return Error{Status: StatusBadStatus, Description: err.Error(), IP: ip}
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location := resp.Header.Get("Location")
		target, err := final.Resolve(location)
		if location == "" || err != nil {
			return Error{Status: StatusBadStatus, Description: fmt.Sprintf("HTTP %d without usable location", resp.StatusCode), IP: ip}
		}
		if target.Domain != domain {
			return Redirect{Domain: target.Domain, IP: ip}
		}
		return Error{Status: StatusBadStatus, Description: fmt.Sprintf("HTTP %d redirect loop", resp.StatusCode), IP: ip}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Error{Status: StatusBadStatus, Description: fmt.Sprintf("HTTP %d", resp.StatusCode), IP: ip}
	}
	return Ok{URL: final.Root(), IP: ip}
}

func (p *Prober) request(ctx context.Context, method, domain string, u model.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	c := *p.client
	c.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= 10 || model.NormalizeDomain(next.URL.Hostname()) != domain {
			return http.ErrUseLastResponse
		}
		return nil
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
