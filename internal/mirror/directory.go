// Package mirror holds the ordered list of candidate mirror hosts and discovers
// new ones from an aggregator page.
package mirror

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/docresolver/internal/document"
)

// Directory is an ordered list of mirror base URLs. Mirrors are only ever
// removed from the head. A Directory is not safe for concurrent use; each
// resolver owns its own.
type Directory struct {
	bases []string
}

// NewDirectory builds a Directory from bases, trimming blanks, trailing
// slashes and duplicates while keeping the first occurrence's position.
func NewDirectory(bases []string) *Directory {
	out := make([]string, 0, len(bases))
	seen := make(map[string]struct{}, len(bases))
	for _, b := range bases {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return &Directory{bases: out}
}

// Current returns the head of the list.
func (d *Directory) Current() (string, error) {
	if d == nil || len(d.bases) == 0 {
		return "", document.ErrMirrorsExhausted
	}
	return d.bases[0], nil
}

// Rotate drops the head. It reports ErrMirrorsExhausted when the list is
// empty afterwards (or was already empty).
func (d *Directory) Rotate() error {
	if d == nil || len(d.bases) == 0 {
		return document.ErrMirrorsExhausted
	}
	d.bases = d.bases[1:]
	if len(d.bases) == 0 {
		return fmt.Errorf("rotate: %w", document.ErrMirrorsExhausted)
	}
	return nil
}

// Len returns the number of remaining mirrors.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.bases)
}

// List returns a copy of the remaining mirrors in order.
func (d *Directory) List() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.bases...)
}

// Clone returns an independent copy.
func (d *Directory) Clone() *Directory {
	return &Directory{bases: d.List()}
}
