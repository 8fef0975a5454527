// Package model defines the data types shared by the crawl packages.
//
// This package contains the following main types:
//   - URL: a parsed, normalized http(s) URL with its hash
//   - ContentTags: the content classes a response was tagged with
//   - CrawlSpec: what to crawl for one domain
//   - AttemptReport: the outcome of one crawl attempt
//
// Keeping them here lets the crawler, database and report packages share
// them without importing each other. AttemptReport and CrawlSpec carry
// JSON tags because both are stored in the database.
package model
