// Package crawler runs polite, resumable crawl attempts against one domain
// at a time and records every fetch in a per-domain archive.
//
// An attempt is a straight pipeline of steps: prepare, probe, resync,
// fetch-robots, sniff-root, revisit, expand-frontier and drain-frontier,
// followed by a terminal step that always runs and files the archive.
//
// # Archive layout
//
// Each domain owns a directory under the archive root:
//
//	<archive-dir>/<domain>/live.warc.gz          written by the running attempt
//	<archive-dir>/<domain>/partial.warc.gz       left by an interrupted attempt
//	<archive-dir>/<domain>/final.warc.gz         last completed attempt
//	<archive-dir>/<domain>/probe-failed.warc.gz  last attempt the probe rejected
//
// A live archive found at startup belongs to a crashed attempt and is
// replayed into the new one before any network fetch.
//
// # Usage
//
//	c := crawler.New(crawler.DefaultSettings(), crawler.WithHTTPClient(client))
//	report, err := c.Crawl(ctx, model.NewCrawlSpec("example.com", 1000, "https://example.com/"))
package crawler
