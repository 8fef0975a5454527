// Package revisit decides whether a re-fetched document changed since the
// previous crawl, and streams that crawl's documents from its archive.
package revisit

import "math/bits"

// DefaultThreshold is the Hamming distance from which two fingerprints
// count as different documents.
const DefaultThreshold = 4

// windowSize is the width in bytes of the rolling window.
const windowSize = 4

// Comparator compares documents by locality-sensitive fingerprint.
type Comparator struct {
	threshold int
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithThreshold sets the Hamming distance threshold.
func WithThreshold(n int) Option {
	return func(c *Comparator) {
		if n > 0 && n <= 64 {
			c.threshold = n
		}
	}
}

// NewComparator creates a comparator.
func NewComparator(opts ...Option) *Comparator {
	c := &Comparator{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the configured distance threshold.
func (c *Comparator) Threshold() int {
	return c.threshold
}

// IsSameContent reports whether a and b are the same document modulo small
// edits. It is symmetric and reflexive.
func (c *Comparator) IsSameContent(a, b []byte) bool {
	return Distance(Fingerprint(a), Fingerprint(b)) < c.threshold
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Fingerprint returns the 64-bit fingerprint of doc. Markup between '<' and
// '>' is skipped byte by byte; the remaining text is hashed in overlapping
// windows and every window votes on each fingerprint bit.
func Fingerprint(doc []byte) uint64 {
	var (
		votes  [64]int32
		window uint32
		filled int
		inTag  bool
	)
	for _, ch := range doc {
		if inTag {
			if ch == '>' {
				inTag = false
			}
			continue
		}
		if ch == '<' {
			inTag = true
			continue
		}

		window = window<<8 | uint32(ch)
		if filled < windowSize {
			filled++
			if filled < windowSize {
				continue
			}
		}

		hi := fmix32(window)
		h := uint64(hi)<<32 | uint64(fmix32(hi^0x9e3779b9))
		for i := range votes {
			if h&(1<<uint(i)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var fp uint64
	for i, v := range votes {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// fmix32 is the murmur3 32-bit finalizer.
func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
