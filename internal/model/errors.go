package model

import "errors"

// URL parsing errors.
var (
	// ErrUnsupportedScheme is returned for anything but http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrEmptyHost is returned when a URL has no host component.
	ErrEmptyHost = errors.New("url has no host")

	// ErrInvalidPort is returned when the port is not in 1-65535.
	ErrInvalidPort = errors.New("invalid url port")

	// ErrEmptyDomain is returned when a crawl spec names no domain.
	ErrEmptyDomain = errors.New("crawl spec has no domain")

	// ErrInvalidDepth is returned when a crawl spec has a non-positive depth.
	ErrInvalidDepth = errors.New("crawl spec depth must be positive")
)
