package extract

import (
	"net/url"
	"strings"
)

// LinkShape tags the variant held by a Link.
type LinkShape int

// Link shapes.
const (
	LinkNone LinkShape = iota
	LinkSingle
	LinkMany
)

// Link is the result of a direct-link search: nothing, one path, or a list of
// candidate paths in page order.
type Link struct {
	shape LinkShape
	paths []string
}

// None returns an empty Link.
func None() Link { return Link{shape: LinkNone} }

// Single wraps one candidate path.
func Single(path string) Link { return Link{shape: LinkSingle, paths: []string{path}} }

// Many wraps several candidates. Zero or one candidate collapse to None/Single.
func Many(paths []string) Link {
	switch len(paths) {
	case 0:
		return None()
	case 1:
		return Single(paths[0])
	default:
		return Link{shape: LinkMany, paths: append([]string(nil), paths...)}
	}
}

// Shape reports which variant the Link holds.
func (l Link) Shape() LinkShape { return l.shape }

// Paths returns a copy of the candidates.
func (l Link) Paths() []string { return append([]string(nil), l.paths...) }

// First normalizes the Link to a single path; ok is false for None.
func (l Link) First() (string, bool) {
	if l.shape == LinkNone || len(l.paths) == 0 {
		return "", false
	}
	return l.paths[0], true
}

// Absolute turns an extracted path into a URL that can be fetched.
// Protocol-relative paths get https, root-relative and bare paths are joined
// to the mirror base, and absolute URLs pass through.
func Absolute(path, mirrorBase string) string {
	path = strings.TrimSpace(path)
	base := strings.TrimRight(mirrorBase, "/")
	switch {
	case strings.HasPrefix(path, "//"):
		return "https:" + path
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		if u, err := url.Parse(path); err == nil && u.Scheme != "" {
			return path
		}
		return base + "/" + path
	}
}
