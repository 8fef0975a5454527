// Package telemetry exports crawl metrics over OTLP/HTTP.
//
// CrawlMetrics implements the crawler's progress observer: attempts
// started, finished and in flight, fetches and their latency by outcome,
// and archived documents by kind. Export is opt-in; when disabled the
// instruments are no-ops.
package telemetry
