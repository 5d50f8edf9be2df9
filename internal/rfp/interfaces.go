package rfp

import (
	"context"
	"io"
	"time"
)

// Adapter fetches one source's listings and maps them onto Record.
// Implementations own field mapping, date parsing and region
// canonicalization; derived fields are left empty.
type Adapter interface {
	Source() Source
	Method() Method
	Fetch(ctx context.Context, params FetchParams) ([]Record, error)
}

// BlobStore persists whole objects by path.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for identity and fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
