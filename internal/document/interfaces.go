package document

import (
	"context"
	"io"
	"time"
)

// Fetcher issues a single GET and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Renderer loads a page in a browser and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// BlobStore writes fetched content and returns its location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists resolution records.
type RecordStore interface {
	StoreResolution(ctx context.Context, record ResolutionRecord) error
}

// Publisher pushes completion events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
