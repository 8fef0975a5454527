package model

import (
	"hash/fnv"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// URL is a normalized absolute http(s) address.
//
// Identity inside a crawl is Hash(), which covers the domain, path and query
// only. Two URLs differing only in scheme or port share a hash.
type URL struct {
	// Scheme is either "http" or "https".
	Scheme string `json:"scheme"`

	// Domain is the lower-cased host name without port.
	Domain string `json:"domain"`

	// Port is the explicit port, or 0 when the scheme default is used.
	Port int `json:"port,omitempty"`

	// Path is the escaped path. It always begins with "/".
	Path string `json:"path"`

	// Query is the raw query string without the leading "?".
	Query string `json:"query,omitempty"`
}

// ParseURL parses and normalizes an absolute http(s) URL.
// Fragments are dropped and default ports are elided.
func ParseURL(raw string) (URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URL{}, err
	}
	return FromNetURL(u)
}

// MustParseURL is like ParseURL but panics on error. Intended for tests and
// package-level constants.
func MustParseURL(raw string) URL {
	u, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// FromNetURL converts a standard library URL into a normalized URL.
func FromNetURL(u *url.URL) (URL, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return URL{}, ErrUnsupportedScheme
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return URL{}, ErrEmptyHost
	}

	port := 0
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return URL{}, ErrInvalidPort
		}
		if n != defaultPort(scheme) {
			port = n
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return URL{
		Scheme: scheme,
		Domain: host,
		Port:   port,
		Path:   path,
		Query:  u.RawQuery,
	}, nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// Host returns the host[:port] authority of the URL.
func (u URL) Host() string {
	if u.Port != 0 {
		return net.JoinHostPort(u.Domain, strconv.Itoa(u.Port))
	}
	if strings.Contains(u.Domain, ":") {
		return "[" + u.Domain + "]"
	}
	return u.Domain
}

// PathAndQuery returns the request target, e.g. "/a/b?c=d".
func (u URL) PathAndQuery() string {
	if u.Query == "" {
		return u.Path
	}
	return u.Path + "?" + u.Query
}

// String returns the absolute form of the URL.
func (u URL) String() string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	sb.WriteString(u.Host())
	sb.WriteString(u.PathAndQuery())
	return sb.String()
}

// IsZero reports whether u is the zero URL.
func (u URL) IsZero() bool {
	return u.Domain == ""
}

// Hash returns the 64-bit identity of the URL within a domain crawl.
func (u URL) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(u.Domain))
	h.Write([]byte{0})
	h.Write([]byte(u.Path))
	h.Write([]byte{0})
	h.Write([]byte(u.Query))
	return h.Sum64()
}

// WithScheme returns a copy of u using the given scheme.
func (u URL) WithScheme(scheme string) URL {
	u.Scheme = scheme
	return u
}

// WithPath returns a copy of u with the given path and no query.
func (u URL) WithPath(path string) URL {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.Query = ""
	return u
}

// Root returns the root document URL of u's host.
func (u URL) Root() URL {
	return u.WithPath("/")
}

// IsRoot reports whether u points at the root document.
func (u URL) IsRoot() bool {
	return u.Path == "/" && u.Query == ""
}

// SameDomain reports whether other is on the same host as u.
func (u URL) SameDomain(other URL) bool {
	return u.Domain == other.Domain
}

// Resolve resolves a possibly relative reference against u.
func (u URL) Resolve(ref string) (URL, error) {
	base, err := url.Parse(u.String())
	if err != nil {
		return URL{}, err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return URL{}, err
	}
	return FromNetURL(base.ResolveReference(r))
}

// NormalizeDomain lower-cases a domain and strips any scheme, port or path
// a user may have typed along with it.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if h, _, err := net.SplitHostPort(d); err == nil {
		d = h
	}
	return strings.TrimSuffix(d, ".")
}

// TopDomain returns the registrable domain of host (eTLD+1), or host itself
// when it has none (IP addresses, bare public suffixes).
func TopDomain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	top, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return top
}
