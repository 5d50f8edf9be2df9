package dedup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// DefaultSeenPath is the object path of the seen set inside the blob store.
const DefaultSeenPath = "state/seen_hashes.json"

const seenVersion = 1

type seenFile struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// BlobSeenStore keeps the seen set as one JSON object in a blob store.
type BlobSeenStore struct {
	blobs rfp.BlobStore
	path  string
}

// NewBlobSeenStore stores the seen set at path (DefaultSeenPath when empty).
func NewBlobSeenStore(blobs rfp.BlobStore, path string) *BlobSeenStore {
	if path == "" {
		path = DefaultSeenPath
	}
	return &BlobSeenStore{blobs: blobs, path: path}
}

// Load reads the seen set. A missing object is an empty set; an unreadable
// one wraps rfp.ErrDedupConflict.
func (b *BlobSeenStore) Load(ctx context.Context) ([]Entry, error) {
	data, err := b.blobs.GetObject(ctx, b.path)
	if errors.Is(err, rfp.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	var f seenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", b.path, rfp.ErrDedupConflict, err)
	}
	if f.Version != seenVersion {
		return nil, fmt.Errorf("%s has version %d: %w", b.path, f.Version, rfp.ErrDedupConflict)
	}
	return f.Entries, nil
}

// Save rewrites the whole set.
func (b *BlobSeenStore) Save(ctx context.Context, changes Changes) error {
	data, err := json.Marshal(seenFile{Version: seenVersion, Entries: changes.All})
	if err != nil {
		return fmt.Errorf("encode seen set: %w", err)
	}
	if _, err := b.blobs.PutObject(ctx, b.path, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}
