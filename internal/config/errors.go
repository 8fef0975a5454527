package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so that callers can use
// errors.Is() while users still get a readable message.
var (
	// ErrNoTarget is returned when neither a plan nor a domain names work.
	ErrNoTarget = errors.New("no target specified: provide a domain or use --plan")

	// ErrNoArchiveDir is returned when the archive directory is empty.
	ErrNoArchiveDir = errors.New("no archive directory configured")

	// ErrInvalidDepth is returned when the default depth is not positive.
	ErrInvalidDepth = errors.New("invalid depth: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidDelay is returned when a delay is negative or a maximum is
	// below its minimum.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative with max >= min")

	// ErrInvalidMaxErrors is returned when the error ceiling is not positive.
	ErrInvalidMaxErrors = errors.New("invalid max errors: must be positive")

	// ErrInvalidMaxBodySize is returned when a body size limit is negative
	// or does not fit in an archive record.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative and below 1 GiB")

	// ErrInvalidDigestAlgorithm is returned for an unknown digest algorithm.
	ErrInvalidDigestAlgorithm = errors.New("invalid digest algorithm: use sha256 or blake2b-256")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: use text or json")

	// ErrInvalidRatio is returned when a ratio or probability is outside [0, 1].
	ErrInvalidRatio = errors.New("invalid ratio: must be between 0 and 1")

	// ErrNoCollectorURL is returned when telemetry is enabled without an endpoint.
	ErrNoCollectorURL = errors.New("telemetry enabled but no collector URL configured")
)
