// Package sha256 provides the SHA-256 digests behind record identity.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Hasher implements rfp.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Stamp fills in r.ContentHash and returns the record's mutable-field
// fingerprint.
func (h *Hasher) Stamp(r *rfp.Record) (string, error) {
	content, err := rfp.ContentHash(h, *r)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	fp, err := rfp.Fingerprint(h, *r)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	r.ContentHash = content
	return fp, nil
}
