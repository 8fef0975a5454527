package blocklist

import (
	"fmt"
	"net/netip"
	"path/filepath"
	"strings"

	"github.com/nao1215/warcrawl/internal/model"
)

// PrivateNetworks are the address ranges a public crawler has no business
// connecting to.
var PrivateNetworks = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// Blocklist rejects addresses, domains and URL paths.
// The zero value blocks nothing. A Blocklist is immutable after New and
// safe for concurrent use.
type Blocklist struct {
	prefixes []netip.Prefix

	// domains match exactly or as a parent domain.
	domains []string

	// patterns are glob patterns matched against the URL path.
	patterns []string
}

// New builds a blocklist from CIDR ranges, domain names and path globs.
func New(cidrs, domains, pathPatterns []string) (*Blocklist, error) {
	b := &Blocklist{}

	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			addr, addrErr := netip.ParseAddr(c)
			if addrErr != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidCIDR, c)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		b.prefixes = append(b.prefixes, p.Masked())
	}

	for _, d := range domains {
		if d = model.NormalizeDomain(d); d != "" {
			b.domains = append(b.domains, d)
		}
	}

	for _, p := range pathPatterns {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if _, err := filepath.Match(p, "/"); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
		b.patterns = append(b.patterns, p)
	}

	return b, nil
}

// IsIPBlocked reports whether addr falls inside a blocked range.
func (b *Blocklist) IsIPBlocked(addr netip.Addr) bool {
	if b == nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range b.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsDomainBlocked reports whether domain or one of its parents is blocked.
func (b *Blocklist) IsDomainBlocked(domain string) bool {
	if b == nil {
		return false
	}
	domain = model.NormalizeDomain(domain)
	for _, d := range b.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// IsURLBlocked reports whether u is on a blocked domain or matches a
// blocked path pattern.
func (b *Blocklist) IsURLBlocked(u model.URL) bool {
	if b == nil {
		return false
	}
	if b.IsDomainBlocked(u.Domain) {
		return true
	}
	for _, p := range b.patterns {
		if matchPattern(p, u.Path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - anything else goes through filepath.Match
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		if strings.HasSuffix(path, "."+ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	return err == nil && matched
}
