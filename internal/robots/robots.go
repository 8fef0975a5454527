// Package robots evaluates robots.txt rules for a single crawler token.
package robots

import (
	"fmt"
	"net/http"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/warcrawl/internal/model"
)

// Path is where robots.txt lives on every host.
const Path = "/robots.txt"

// Rules is the parsed robots.txt group for one user-agent token.
// A nil *Rules allows everything.
type Rules struct {
	group    *robotstxt.Group
	sitemaps []string
}

// AllowAll returns rules that permit every path.
func AllowAll() *Rules {
	return &Rules{}
}

// Parse parses a robots.txt body and selects the group for agent,
// falling back to the "*" group.
func Parse(body []byte, agent string) (*Rules, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return &Rules{
		group:    data.FindGroup(agent),
		sitemaps: data.Sitemaps,
	}, nil
}

// FromResponse builds rules from a fetched robots.txt. Anything but a 2xx
// response means the file is absent and everything is allowed.
func FromResponse(status int, body []byte, agent string) (*Rules, error) {
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return AllowAll(), nil
	}
	return Parse(body, agent)
}

// Allowed reports whether u may be fetched.
func (r *Rules) Allowed(u model.URL) bool {
	if r == nil || r.group == nil {
		return true
	}
	if u.Path == Path {
		return true
	}
	return r.group.Test(u.PathAndQuery())
}

// CrawlDelay returns the declared Crawl-delay, or 0 when absent.
func (r *Rules) CrawlDelay() time.Duration {
	if r == nil || r.group == nil {
		return 0
	}
	return r.group.CrawlDelay
}

// Sitemaps returns the Sitemap: URLs listed in the file.
func (r *Rules) Sitemaps() []string {
	if r == nil {
		return nil
	}
	return r.sitemaps
}
