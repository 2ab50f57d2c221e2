package document

import (
	"net/http"
	"time"
)

// DefaultContentType is the media type a fetched document must carry.
const DefaultContentType = "application/pdf"

// FetchRequest captures everything needed to issue one GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the raw Content-Type header.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// FetchResult is produced only by a fully successful resolution.
type FetchResult struct {
	Identifier  Identifier
	Content     []byte
	SourceURL   string
	DerivedName string
	Hash        string
	Mirror      string
}

// ResolutionRecord is persisted for every saved document.
type ResolutionRecord struct {
	ID          string
	Identifier  string
	Kind        Kind
	SourceURL   string
	Mirror      string
	Name        string
	Location    string
	Hash        string
	SizeBytes   int64
	ResolvedAt  time.Time
	DurationMs  int64
	ContentType string
}
