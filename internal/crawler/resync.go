package crawler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nao1215/warcrawl/internal/frontier"
	"github.com/nao1215/warcrawl/internal/model"
	"github.com/nao1215/warcrawl/internal/recorder"
	"github.com/nao1215/warcrawl/internal/revisit"
	"github.com/nao1215/warcrawl/internal/warc"
)

// ResyncStats summarizes a replayed partial archive.
type ResyncStats struct {
	// Records is the number of records copied.
	Records int
	// Fetched counts copied 2xx responses.
	Fetched int
	// Links are same-domain links found in copied HTML responses.
	Links []model.URL
	// Truncated is set when the partial archive ended mid-record.
	Truncated bool
}

// Resync copies the records of an interrupted archive into the running
// one and restores the frontier from them: every archived target is
// marked visited. Warcinfo records are skipped since the running archive
// has its own.
//
// An archive that cannot be opened or is not an archive yields
// ErrUnreadablePartial. Errors writing the running archive are returned
// as is.
func Resync(path string, rec *recorder.Recorder, f *frontier.Frontier) (*ResyncStats, error) {
	r, err := warc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadablePartial, err)
	}
	defer r.Close()

	stats := &ResyncStats{}
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stats.Records == 0 {
				return nil, fmt.Errorf("%w: %w", ErrUnreadablePartial, err)
			}
			break
		}
		if record.Type == warc.TypeInfo {
			continue
		}

		if err := rec.Replay(record); err != nil {
			return stats, err
		}
		stats.Records++

		if record.Type == warc.TypeRequest {
			continue
		}
		u, err := model.ParseURL(record.TargetURI)
		if err != nil || !u.SameDomain(f.Root()) {
			continue
		}
		f.MarkVisited(u)

		if record.Type != warc.TypeResponse && record.Type != warc.TypeReferenceResponse {
			continue
		}
		resp, body, err := warc.ParseResponse(record.Block)
		if err != nil {
			continue
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			continue
		}
		stats.Fetched++
		if ct := resp.Header.Get("Content-Type"); revisit.IsHTML(ct) {
			stats.Links = append(stats.Links, ExtractLinks(u, body, ct)...)
		}
	}
	stats.Truncated = r.Truncated()

	return stats, nil
}
