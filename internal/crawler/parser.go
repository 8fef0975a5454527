package crawler

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/nao1215/warcrawl/internal/model"
)

// Parser extracts links from an HTML document.
type Parser struct {
	// base is the URL of the page being parsed, used to resolve relative links.
	base model.URL
}

// ParseResult contains the links and page hints found in one document.
type ParseResult struct {
	// Title is the page title from <title>.
	Title string

	// Links are the resolved same-domain links in document order, without
	// duplicates.
	Links []model.URL

	// ExternalLinks are resolved links to other hosts.
	ExternalLinks []model.URL

	// NoFollow is set when <meta name="robots"> forbids following links.
	NoFollow bool
}

// NewParser creates a parser resolving links against base.
func NewParser(base model.URL) *Parser {
	return &Parser{base: base}
}

// Parse walks the document and collects links from a, area, frame and
// iframe elements. A <base href> changes the resolution base for the rest
// of the document.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links:         make([]model.URL, 0),
		ExternalLinks: make([]model.URL, 0),
	}
	seen := make(map[uint64]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result, seen)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

func (p *Parser) processElement(n *html.Node, result *ParseResult, seen map[uint64]bool) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "base":
		if href := getAttr(n, "href"); href != "" {
			if u, err := p.base.Resolve(href); err == nil {
				p.base = u
			}
		}

	case "meta":
		if strings.EqualFold(getAttr(n, "name"), "robots") &&
			strings.Contains(strings.ToLower(getAttr(n, "content")), "nofollow") {
			result.NoFollow = true
		}

	case "a", "area":
		if strings.Contains(strings.ToLower(getAttr(n, "rel")), "nofollow") {
			return
		}
		p.addLink(getAttr(n, "href"), result, seen)

	case "frame", "iframe":
		p.addLink(getAttr(n, "src"), result, seen)
	}
}

func (p *Parser) addLink(href string, result *ParseResult, seen map[uint64]bool) {
	u, ok := p.resolve(href)
	if !ok {
		return
	}
	if !u.SameDomain(p.base) {
		result.ExternalLinks = append(result.ExternalLinks, u)
		return
	}
	h := u.Hash()
	if seen[h] {
		return
	}
	seen[h] = true
	result.Links = append(result.Links, u)
}

// resolve resolves href against the base, rejecting pseudo-schemes and
// pure fragments.
func (p *Parser) resolve(href string) (model.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return model.URL{}, false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return model.URL{}, false
		}
	}

	u, err := p.base.Resolve(href)
	if err != nil {
		return model.URL{}, false
	}
	return u, true
}

// ExtractLinks returns the same-domain links of an HTML body, honoring the
// charset declared in contentType or sniffed from the document. A page
// marked nofollow yields no links.
func ExtractLinks(base model.URL, body []byte, contentType string) []model.URL {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	result, err := NewParser(base).Parse(r)
	if err != nil || result.NoFollow {
		return nil
	}
	return result.Links
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
