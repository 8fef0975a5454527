// Package log provides secure logging built on top of the standard slog
// package.
//
// Loggers come in two formats: colored console lines through tint, and
// JSON for log aggregation. Both are wrapped by SecureHandler, which masks
// sensitive values before they reach the output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - values that look like tokens, keys or credentials
//   - user info and session or token query parameters in logged URLs
//
// # Usage
//
//	logger := log.New(os.Stderr, log.FormatText, verbose)
//	logger.Info("fetched", "url", "https://example.com/?sid=abc")
//	// url=https://example.com/?sid=%2A%2A%2AREDACTED%2A%2A%2A
//	slog.SetDefault(logger)
package log
