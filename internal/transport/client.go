package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultTimeout is the overall timeout of a client request.
	DefaultTimeout = 60 * time.Second

	// DefaultDialTimeout bounds TCP connection setup.
	DefaultDialTimeout = 10 * time.Second

	// checkProxyTimeout bounds the SOCKS5 handshake check.
	checkProxyTimeout = 2 * time.Second
)

// SOCKS5 greeting bytes.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// Client creates HTTP clients that share one dialer.
type Client struct {
	proxyAddress string
	dialer       proxy.ContextDialer
	timeout      time.Duration
	headers      map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall request timeout of created HTTP clients.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeaders sets headers added to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// NewClient creates a client. An empty proxyAddress means direct
// connections; otherwise it must be a SOCKS5 proxy in host:port form.
func NewClient(proxyAddress string, opts ...Option) (*Client, error) {
	direct := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 30 * time.Second}

	c := &Client{
		proxyAddress: proxyAddress,
		dialer:       direct,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if proxyAddress == "" {
		return c, nil
	}
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}
	d, err := proxy.SOCKS5("tcp", proxyAddress, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		cd = contextDialer{d}
	}
	c.dialer = cd
	return c, nil
}

func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured proxy, or "" for direct connections.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// DialContext opens a TCP connection through the configured route.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, network, address)
}

// NewHTTPClient returns an HTTP client with its own cookie jar.
// Redirects are followed up to 10 hops; callers that archive exchanges
// override CheckRedirect.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           c.dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DisableCompression:    true,
	}

	//nolint:errcheck // cookiejar.New only fails with invalid options
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	client := &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	if len(c.headers) > 0 {
		client.Transport = &headerInjectingTransport{base: transport, headers: c.headers}
	}
	return client
}

// CheckProxy performs a SOCKS5 greeting against the configured proxy.
// Without a proxy it returns ProxyStatusOK.
func (c *Client) CheckProxy(ctx context.Context) ProxyStatus {
	if c.proxyAddress == "" {
		return ProxyStatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// contextDialer adds context support to a plain proxy.Dialer. The dial
// itself keeps running after ctx is done.
type contextDialer struct {
	d proxy.Dialer
}

func (c contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := c.d.Dial(network, address)
		ch <- dialResult{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// headerInjectingTransport adds configured headers to every request that
// does not already carry them.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}
	return t.base.RoundTrip(clone)
}
