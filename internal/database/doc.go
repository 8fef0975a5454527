// Package database provides SQLite-based storage for warcrawl.
//
// This package implements the CrawlDB, which stores:
//   - Crawl specifications per domain
//   - Attempt reports for historical analysis
//   - Links discovered per domain, fed to later attempts as known links
//
// The database is a single file opened through the pure-Go
// modernc.org/sqlite driver, with WAL journaling enabled by default.
package database
