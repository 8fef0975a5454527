package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/warcrawl/internal/frontier"
	"github.com/nao1215/warcrawl/internal/model"
)

// Engine identifies the software behind a site, as far as the root
// document gives it away.
type Engine int

// Known engines.
const (
	EngineUnknown Engine = iota
	EngineMediaWiki
	EngineDiscourse
	EngineLemmy
	EnginePhpBB
	EngineMastodon
)

// String returns the string representation of the Engine.
func (e Engine) String() string {
	switch e {
	case EngineMediaWiki:
		return "mediawiki"
	case EngineDiscourse:
		return "discourse"
	case EngineLemmy:
		return "lemmy"
	case EnginePhpBB:
		return "phpbb"
	case EngineMastodon:
		return "mastodon"
	default:
		return "unknown"
	}
}

// SniffResult is what the root document tells about a site.
type SniffResult struct {
	// Engine is the detected site software.
	Engine Engine

	// Feeds are same-domain RSS or Atom feeds announced with
	// <link rel="alternate">.
	Feeds []model.URL

	// Filter narrows the frontier to content pages of the engine.
	Filter frontier.LinkFilter
}

var feedTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/feed+xml": true,
	"application/xml":      true,
	"text/xml":             true,
}

// Sniff inspects the root document for engine signatures and feed links.
// Unparseable documents yield an unknown engine and an accept-all filter.
func Sniff(root model.URL, body []byte) SniffResult {
	result := SniffResult{Filter: frontier.AcceptAll}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result
	}

	result.Engine = detectEngine(doc)
	result.Filter = LinkFilterFor(result.Engine)

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		href, ok := s.Attr("href")
		if !ok || !feedTypes[strings.ToLower(strings.TrimSpace(typ))] {
			return
		}
		u, err := root.Resolve(href)
		if err != nil || !u.SameDomain(root) {
			return
		}
		result.Feeds = append(result.Feeds, u)
	})

	return result
}

func detectEngine(doc *goquery.Document) Engine {
	generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
	switch {
	case strings.HasPrefix(generator, "mediawiki"):
		return EngineMediaWiki
	case strings.HasPrefix(generator, "discourse"):
		return EngineDiscourse
	case strings.HasPrefix(generator, "lemmy"):
		return EngineLemmy
	case strings.Contains(generator, "phpbb"):
		return EnginePhpBB
	case strings.HasPrefix(generator, "mastodon"):
		return EngineMastodon
	}

	switch {
	case doc.Find("#mw-content-text, body.mediawiki").Length() > 0:
		return EngineMediaWiki
	case doc.Find(`meta[name="discourse_theme_id"], #data-discourse-setup`).Length() > 0:
		return EngineDiscourse
	case doc.Find(`a[href*="viewforum.php"], #phpbb`).Length() > 0:
		return EnginePhpBB
	case doc.Find("#mastodon").Length() > 0:
		return EngineMastodon
	}
	return EngineUnknown
}

// LinkFilterFor returns the link filter suited to engine. Unknown engines
// accept every link.
func LinkFilterFor(engine Engine) frontier.LinkFilter {
	switch engine {
	case EngineMediaWiki:
		return mediaWikiFilter
	case EngineDiscourse:
		return prefixFilter("/t/", "/c/", "/latest", "/top")
	case EngineLemmy:
		return prefixFilter("/post/", "/c/")
	case EnginePhpBB:
		return phpBBFilter
	case EngineMastodon:
		return mastodonFilter
	default:
		return frontier.AcceptAll
	}
}

func prefixFilter(prefixes ...string) frontier.LinkFilter {
	return func(u model.URL) bool {
		if u.IsRoot() {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(u.Path, p) {
				return true
			}
		}
		return false
	}
}

// mediaWikiFilter keeps article pages and drops special namespaces and
// query-driven views such as histories and diffs.
func mediaWikiFilter(u model.URL) bool {
	if u.IsRoot() {
		return true
	}
	title, ok := strings.CutPrefix(u.Path, "/wiki/")
	if !ok || u.Query != "" {
		return false
	}
	return !strings.Contains(title, ":") && !strings.Contains(title, "%3A")
}

// phpBBFilter keeps topic and forum listings without session ids.
func phpBBFilter(u model.URL) bool {
	if u.IsRoot() {
		return true
	}
	if strings.Contains(u.Query, "sid=") {
		return false
	}
	name := u.Path[strings.LastIndex(u.Path, "/")+1:]
	switch name {
	case "viewtopic.php", "viewforum.php", "index.php":
		return true
	default:
		return false
	}
}

// mastodonFilter keeps profiles and single statuses.
func mastodonFilter(u model.URL) bool {
	if u.IsRoot() {
		return true
	}
	if !strings.HasPrefix(u.Path, "/@") || u.Query != "" {
		return false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	return len(segments) <= 2
}
