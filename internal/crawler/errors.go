package crawler

import "errors"

var (
	// ErrSitemapStatus is returned when a sitemap answers with a non-200 status.
	ErrSitemapStatus = errors.New("unexpected sitemap status")

	// ErrUnreadablePartial is returned when a partial archive cannot be replayed.
	ErrUnreadablePartial = errors.New("partial archive is unreadable")

	// ErrDomainLocked is returned by TryLock when another worker holds the domain.
	ErrDomainLocked = errors.New("domain is being crawled by another worker")
)
