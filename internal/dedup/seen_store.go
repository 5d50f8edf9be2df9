package dedup

import "context"

// Changes is the delta a Commit hands to a SeenStore. All is the full
// post-commit state for backends that rewrite everything.
type Changes struct {
	Upserts []Entry
	Removed []string
	All     []Entry
}

// SeenStore persists the seen-hash set between runs.
type SeenStore interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, changes Changes) error
}
