// Package politeness paces requests: CrawlDelayTimer spaces fetches against
// a single domain, and LaunchThrottle spaces the start of crawl attempts
// across the whole process.
//
// Every wait takes a context and returns early with ctx.Err() once it is
// cancelled.
package politeness
