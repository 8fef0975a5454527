package crawler

import (
	"testing"

	"github.com/nao1215/warcrawl/internal/model"
)

func TestSniff(t *testing.T) {
	t.Parallel()

	root := model.MustParseURL("https://forum.example/")

	tests := []struct {
		name   string
		body   string
		engine Engine
	}{
		{"mediawiki generator", `<html><head><meta name="generator" content="MediaWiki 1.41.0"></head></html>`, EngineMediaWiki},
		{"mediawiki markup", `<html><body class="mediawiki"><div id="mw-content-text"></div></body></html>`, EngineMediaWiki},
		{"discourse", `<html><head><meta name="generator" content="Discourse 3.2"></head></html>`, EngineDiscourse},
		{"lemmy", `<html><head><meta name="generator" content="Lemmy"></head></html>`, EngineLemmy},
		{"phpbb", `<html><body><a href="./viewforum.php?f=2">forum</a></body></html>`, EnginePhpBB},
		{"mastodon", `<html><body><div id="mastodon"></div></body></html>`, EngineMastodon},
		{"plain", `<html><body><p>hello</p></body></html>`, EngineUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Sniff(root, []byte(tt.body))
			if got.Engine != tt.engine {
				t.Errorf("expected %s, got %s", tt.engine, got.Engine)
			}
			if got.Filter == nil {
				t.Error("expected a filter")
			}
		})
	}

	t.Run("harvests same-domain feeds", func(t *testing.T) {
		t.Parallel()

		body := `<html><head>
			<link rel="alternate" type="application/rss+xml" href="/feed.xml">
			<link rel="alternate" type="application/atom+xml" href="https://other.example/atom">
			<link rel="alternate" hreflang="de" href="/de/">
		</head></html>`
		got := Sniff(root, []byte(body))
		if len(got.Feeds) != 1 || got.Feeds[0].Path != "/feed.xml" {
			t.Errorf("expected /feed.xml, got %v", got.Feeds)
		}
	})
}

func TestLinkFilterFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		engine Engine
		url    string
		want   bool
	}{
		{EngineUnknown, "https://x.example/anything?q=1", true},
		{EngineMediaWiki, "https://x.example/wiki/Go_(language)", true},
		{EngineMediaWiki, "https://x.example/wiki/Special:Random", false},
		{EngineMediaWiki, "https://x.example/wiki/Page?action=history", false},
		{EngineMediaWiki, "https://x.example/w/index.php", false},
		{EngineDiscourse, "https://x.example/t/topic/12", true},
		{EngineDiscourse, "https://x.example/u/someone", false},
		{EngineLemmy, "https://x.example/post/3", true},
		{EngineLemmy, "https://x.example/login", false},
		{EnginePhpBB, "https://x.example/viewtopic.php?t=1", true},
		{EnginePhpBB, "https://x.example/viewtopic.php?t=1&sid=abc", false},
		{EnginePhpBB, "https://x.example/memberlist.php", false},
		{EngineMastodon, "https://x.example/@user", true},
		{EngineMastodon, "https://x.example/@user/1234", true},
		{EngineMastodon, "https://x.example/@user/1234/reblogs", false},
		{EngineMastodon, "https://x.example/", true},
	}

	for _, tt := range tests {
		t.Run(tt.engine.String()+" "+tt.url, func(t *testing.T) {
			t.Parallel()

			if got := LinkFilterFor(tt.engine)(model.MustParseURL(tt.url)); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
