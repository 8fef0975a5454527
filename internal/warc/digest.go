package warc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest algorithm.
type Algorithm string

// Supported algorithms.
const (
	SHA256     Algorithm = "sha256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// DefaultAlgorithm is used when none is configured.
const DefaultAlgorithm = SHA256

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case SHA256, BLAKE2b256:
		return a, nil
	case "":
		return DefaultAlgorithm, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == BLAKE2b256 {
		h, err := blake2b.New256(nil)
		if err != nil {
			// only fails for keys longer than 64 bytes
			panic(err)
		}
		return h
	}
	return sha256.New()
}

// Digester computes a digest incrementally. A Digester is owned by the
// single fetch that created it.
type Digester struct {
	algo Algorithm
	h    hash.Hash
}

// NewDigester starts an empty digest.
func NewDigester(a Algorithm) *Digester {
	if a == "" {
		a = DefaultAlgorithm
	}
	return &Digester{algo: a, h: a.newHash()}
}

// Write feeds p into the digest. It never fails.
func (d *Digester) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Update feeds p into the digest.
func (d *Digester) Update(p []byte) {
	d.h.Write(p)
}

// Finish returns the digest as "<algorithm>:<hex>". The digester may keep
// being updated afterwards.
func (d *Digester) Finish() string {
	return string(d.algo) + ":" + hex.EncodeToString(d.h.Sum(nil))
}

// Digest returns the digest of data in one call.
func Digest(a Algorithm, data []byte) string {
	d := NewDigester(a)
	d.Update(data)
	return d.Finish()
}

// AlgorithmOf returns the algorithm of a labelled digest.
func AlgorithmOf(digest string) (Algorithm, bool) {
	label, _, ok := strings.Cut(digest, ":")
	if !ok {
		return "", false
	}
	a, err := ParseAlgorithm(label)
	if err != nil {
		return "", false
	}
	return a, true
}

// MatchDigest reports whether digest was computed over data.
func MatchDigest(digest string, data []byte) bool {
	a, ok := AlgorithmOf(digest)
	if !ok {
		return false
	}
	return Digest(a, data) == strings.ToLower(digest)
}
