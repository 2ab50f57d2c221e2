package download

import (
	"time"

	"github.com/JakeFAU/docresolver/internal/document"
)

// Event is published after each successful save.
type Event struct {
	ID         string `json:"id,omitempty"`
	Identifier string `json:"identifier"`
	Kind       string `json:"kind"`
	SourceURL  string `json:"source_url"`
	Mirror     string `json:"mirror,omitempty"`
	Location   string `json:"location"`
	Hash       string `json:"hash"`
	SizeBytes  int64  `json:"size_bytes"`
	ResolvedAt string `json:"resolved_at"`
}

func newEvent(r document.ResolutionRecord) Event {
	return Event{
		ID:         r.ID,
		Identifier: r.Identifier,
		Kind:       string(r.Kind),
		SourceURL:  r.SourceURL,
		Mirror:     r.Mirror,
		Location:   r.Location,
		Hash:       r.Hash,
		SizeBytes:  r.SizeBytes,
		ResolvedAt: r.ResolvedAt.Format(time.RFC3339),
	}
}

// Attributes exposes filterable message attributes.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"identifier": e.Identifier,
		"kind":       e.Kind,
	}
}
