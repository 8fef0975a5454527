package model

// CrawlSpec describes one unit of crawl work: a domain, where to start,
// and how many documents it may visit.
type CrawlSpec struct {
	// Domain is the host name to crawl.
	Domain string `json:"domain" yaml:"domain"`

	// Seeds are absolute URLs to enqueue after the root document.
	Seeds []string `json:"seeds,omitempty" yaml:"seeds,omitempty"`

	// Depth is the visit budget for the attempt.
	Depth int `json:"depth" yaml:"depth"`
}

// NewCrawlSpec returns a spec for domain with the given depth and seeds.
// The domain is normalized.
func NewCrawlSpec(domain string, depth int, seeds ...string) CrawlSpec {
	return CrawlSpec{
		Domain: NormalizeDomain(domain),
		Seeds:  seeds,
		Depth:  depth,
	}
}

// Validate checks the spec for obviously unusable values.
func (s CrawlSpec) Validate() error {
	if s.Domain == "" {
		return ErrEmptyDomain
	}
	if s.Depth <= 0 {
		return ErrInvalidDepth
	}
	return nil
}

// SeedURLs parses the seeds, silently dropping malformed entries and
// entries on other hosts.
func (s CrawlSpec) SeedURLs() []URL {
	urls := make([]URL, 0, len(s.Seeds))
	for _, raw := range s.Seeds {
		u, err := ParseURL(raw)
		if err != nil || u.Domain != s.Domain {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}
