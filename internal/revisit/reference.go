package revisit

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/warc"
)

// Document is a successfully fetched HTML page from a previous crawl.
type Document struct {
	URL         model.URL
	ContentType string
	Status      int
	Header      http.Header
	Body        []byte
	Tags        model.ContentTags
}

// References streams the documents of a previous archive in archive order.
// Only 200 HTML responses and reference copies are returned, one at a
// time; a URL seen twice keeps its first occurrence.
type References struct {
	r    *warc.Reader
	seen map[uint64]struct{}
}

// OpenReference opens the archive at path. A missing archive yields no
// documents.
func OpenReference(path string) (*References, error) {
	r, err := warc.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &References{}, nil
		}
		return nil, fmt.Errorf("failed to open reference archive: %w", err)
	}
	return &References{r: r, seen: make(map[uint64]struct{})}, nil
}

// Next returns the next document, or io.EOF once the archive is read. A
// truncated tail ends the iteration like a clean end.
func (refs *References) Next() (Document, error) {
	if refs.r == nil {
		return Document{}, io.EOF
	}
	for {
		rec, err := refs.r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Document{}, io.EOF
			}
			return Document{}, fmt.Errorf("failed to read reference archive: %w", err)
		}
		doc, ok := documentOf(rec)
		if !ok {
			continue
		}
		if _, dup := refs.seen[doc.URL.Hash()]; dup {
			continue
		}
		refs.seen[doc.URL.Hash()] = struct{}{}
		return doc, nil
	}
}

// Close closes the archive.
func (refs *References) Close() error {
	if refs.r == nil {
		return nil
	}
	return refs.r.Close()
}

func documentOf(rec *warc.Record) (Document, bool) {
	if !rec.Type.IsResponse() {
		return Document{}, false
	}
	u, err := model.ParseURL(rec.TargetURI)
	if err != nil {
		return Document{}, false
	}
	resp, body, err := warc.ParseResponse(rec.Block)
	if err != nil || resp.StatusCode != http.StatusOK {
		return Document{}, false
	}
	contentType := resp.Header.Get("Content-Type")
	if !IsHTML(contentType) {
		return Document{}, false
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	return Document{
		URL:         u,
		ContentType: mt,
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		Tags:        model.TagsFromHeader(resp.Header),
	}, true
}

// IsHTML reports whether a Content-Type header names an HTML document.
func IsHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
