// Package hashing provides deterministic text normalization and hashing used
// to deduplicate memories. All functions are pure and stable across process
// restarts.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// Algorithm selects the hash function used by Hash.
type Algorithm string

// Supported hash algorithms.
const (
	SHA256 Algorithm = "sha256"
	MD5    Algorithm = "md5"
)

// Normalize lower-cases the text, strips punctuation, collapses whitespace
// runs to single spaces, and trims. Two sentences that differ only in case,
// punctuation, or spacing normalize to the same string.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true // leading whitespace is dropped
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// stripped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// Hash returns the hex digest of text under the given algorithm. When
// normalize is true the text is passed through Normalize first, so
// whitespace/case/punctuation variants of the same sentence hash identically.
// Unknown algorithms fall back to SHA-256.
func Hash(text string, normalize bool, algorithm Algorithm) string {
	if normalize {
		text = Normalize(text)
	}
	switch algorithm {
	case MD5:
		return fmt.Sprintf("%x", md5.Sum([]byte(text)))
	default:
		return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
	}
}

// ContentHash is the canonical hash used for memory deduplication:
// normalized SHA-256.
func ContentHash(text string) string {
	return Hash(text, true, SHA256)
}

// SameHash reports whether a and b produce the same normalized SHA-256 hash.
func SameHash(a, b string) bool {
	return ContentHash(a) == ContentHash(b)
}

// SimilarText reports whether a and b are equal after normalization.
// Cheaper than SameHash when only an equality check is needed.
func SimilarText(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
