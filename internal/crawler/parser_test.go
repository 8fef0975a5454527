package crawler

import (
	"strings"
	"testing"

	"github.com/nao1215/warcrawl/internal/model"
)

func TestParser(t *testing.T) {
	t.Parallel()

	base := model.MustParseURL("https://example.com/dir/page")

	t.Run("extracts title", func(t *testing.T) {
		t.Parallel()

		result, err := NewParser(base).Parse(strings.NewReader(`<html><head><title> Test Page </title></head></html>`))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		if result.Title != "Test Page" {
			t.Errorf("expected title 'Test Page', got %q", result.Title)
		}
	})

	t.Run("resolves and classifies links", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="/abs">abs</a>
			<a href="rel">rel</a>
			<a href="https://example.com/abs#frag">dup</a>
			<a href="https://other.example/x">external</a>
			<a href="mailto:a@example.com">mail</a>
			<a href="javascript:void(0)">js</a>
			<a href="#top">fragment</a>
			<iframe src="/frame"></iframe>
		</body></html>`

		result, err := NewParser(base).Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}

		want := []string{
			"https://example.com/abs",
			"https://example.com/dir/rel",
			"https://example.com/frame",
		}
		if len(result.Links) != len(want) {
			t.Fatalf("expected %d links, got %v", len(want), result.Links)
		}
		for i, w := range want {
			if result.Links[i].String() != w {
				t.Errorf("link %d: expected %s, got %s", i, w, result.Links[i])
			}
		}
		if len(result.ExternalLinks) != 1 {
			t.Errorf("expected 1 external link, got %d", len(result.ExternalLinks))
		}
	})

	t.Run("honors base href", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="/other/"></head><body><a href="x">x</a></body></html>`
		result, err := NewParser(base).Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		if len(result.Links) != 1 || result.Links[0].Path != "/other/x" {
			t.Errorf("expected /other/x, got %v", result.Links)
		}
	})

	t.Run("skips nofollow", func(t *testing.T) {
		t.Parallel()

		html := `<html><body><a rel="nofollow" href="/a">a</a><a href="/b">b</a></body></html>`
		result, err := NewParser(base).Parse(strings.NewReader(html))
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		if len(result.Links) != 1 || result.Links[0].Path != "/b" {
			t.Errorf("expected only /b, got %v", result.Links)
		}
	})
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	base := model.MustParseURL("http://example.com/")

	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{
			name:        "plain page",
			body:        `<a href="/a">a</a><a href="/b">b</a>`,
			contentType: "text/html; charset=utf-8",
			want:        2,
		},
		{
			name:        "meta robots nofollow",
			body:        `<html><head><meta name="robots" content="noindex, nofollow"></head><body><a href="/a">a</a></body></html>`,
			contentType: "text/html",
			want:        0,
		},
		{
			name:        "latin1 page",
			body:        "<a href=\"/caf\xe9\">caf\xe9</a>",
			contentType: "text/html; charset=iso-8859-1",
			want:        1,
		},
		{
			name:        "unknown charset",
			body:        `<a href="/a">a</a>`,
			contentType: "text/html; charset=bogus",
			want:        1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ExtractLinks(base, []byte(tt.body), tt.contentType)
			if len(got) != tt.want {
				t.Errorf("expected %d links, got %v", tt.want, got)
			}
		})
	}
}
