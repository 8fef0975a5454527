package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/warcrawl/internal/model"
)

const (
	// DefaultMaxSitemapURLs caps the links taken from sitemaps per attempt.
	DefaultMaxSitemapURLs = 50_000

	// maxSitemapDepth is how many levels of sitemap indexes are followed.
	maxSitemapDepth = 2

	// maxSitemapSize caps one decompressed sitemap document.
	maxSitemapSize = 50 << 20
)

// Sitemap is the content of one sitemap-like document.
type Sitemap struct {
	// URLs are page locations from a urlset, RSS items or Atom entries.
	URLs []string

	// Children are nested sitemaps listed by a sitemap index.
	Children []string
}

// ParseSitemap parses an XML sitemap, sitemap index, RSS feed or Atom feed.
// Element names are matched without namespaces.
func ParseSitemap(data []byte) (*Sitemap, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap: %w", err)
	}

	sm := &Sitemap{}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			sm.Children = append(sm.Children, loc)
		}
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			sm.URLs = append(sm.URLs, loc)
		}
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='item']/*[local-name()='link']") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			sm.URLs = append(sm.URLs, loc)
		}
	}
	for _, n := range xmlquery.Find(doc, "//*[local-name()='entry']/*[local-name()='link']") {
		rel := n.SelectAttr("rel")
		if rel != "" && rel != "alternate" {
			continue
		}
		if href := strings.TrimSpace(n.SelectAttr("href")); href != "" {
			sm.URLs = append(sm.URLs, href)
		}
	}
	return sm, nil
}

// SitemapFetcher downloads sitemaps and feeds. Downloads are plain GETs
// and are not archived.
type SitemapFetcher struct {
	client    *http.Client
	userAgent string
	maxURLs   int
	logger    *slog.Logger
}

// NewSitemapFetcher creates a fetcher taking at most maxURLs links.
func NewSitemapFetcher(client *http.Client, userAgent string, maxURLs int, logger *slog.Logger) *SitemapFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxURLs <= 0 {
		maxURLs = DefaultMaxSitemapURLs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapFetcher{
		client:    client,
		userAgent: userAgent,
		maxURLs:   maxURLs,
		logger:    logger,
	}
}

// Pacer waits between two downloads of the same domain. elapsed is the
// duration of the download just made.
type Pacer func(ctx context.Context, elapsed time.Duration) error

// Collect downloads every same-domain sitemap in locations, follows
// sitemap indexes, and returns the same-domain page URLs found, in order
// and without duplicates. Failing sitemaps are logged and skipped. pace,
// if not nil, is called after every download; an error from it stops the
// collection.
func (f *SitemapFetcher) Collect(ctx context.Context, root model.URL, locations []model.URL, pace Pacer) []model.URL {
	var (
		out     []model.URL
		seen    = make(map[uint64]bool)
		fetched = make(map[uint64]bool)
		stopped bool
	)

	var visit func(locs []model.URL, depth int)
	visit = func(locs []model.URL, depth int) {
		for _, loc := range locs {
			if stopped || ctx.Err() != nil || len(out) >= f.maxURLs {
				return
			}
			if !loc.SameDomain(root) || fetched[loc.Hash()] {
				continue
			}
			fetched[loc.Hash()] = true

			start := time.Now()
			sm, err := f.fetch(ctx, loc)
			if pace != nil {
				if perr := pace(ctx, time.Since(start)); perr != nil {
					stopped = true
					return
				}
			}
			if err != nil {
				f.logger.Debug("sitemap skipped",
					slog.String("url", loc.String()),
					slog.String("error", err.Error()))
				continue
			}

			for _, raw := range sm.URLs {
				if len(out) >= f.maxURLs {
					return
				}
				u, err := loc.Resolve(raw)
				if err != nil || !u.SameDomain(root) || seen[u.Hash()] {
					continue
				}
				seen[u.Hash()] = true
				out = append(out, u)
			}

			if depth < maxSitemapDepth && len(sm.Children) > 0 {
				children := make([]model.URL, 0, len(sm.Children))
				for _, raw := range sm.Children {
					if u, err := loc.Resolve(raw); err == nil {
						children = append(children, u)
					}
				}
				visit(children, depth+1)
			}
		}
	}
	visit(locations, 0)

	return out
}

func (f *SitemapFetcher) fetch(ctx context.Context, loc model.URL) (*Sitemap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrSitemapStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapSize))
	if err != nil {
		return nil, err
	}
	if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if data, err = io.ReadAll(io.LimitReader(zr, maxSitemapSize)); err != nil {
			return nil, err
		}
	}
	return ParseSitemap(data)
}
