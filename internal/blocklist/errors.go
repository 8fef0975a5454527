package blocklist

import "errors"

var (
	// ErrInvalidCIDR is returned for entries that are neither a CIDR range
	// nor a single address.
	ErrInvalidCIDR = errors.New("invalid blocklist address range")

	// ErrInvalidPattern is returned for malformed path globs.
	ErrInvalidPattern = errors.New("invalid blocklist path pattern")
)
