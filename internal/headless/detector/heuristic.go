// Package detector decides whether a mirror page with no extractable link is
// worth rendering in a headless browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/docresolver/internal/document"
)

// DefaultBodyLengthThreshold is the page size below which script-heavy pages
// are rendered.
const DefaultBodyLengthThreshold = 2048

// scriptShareRender is the percentage of a small page inside <script> blocks
// that marks it as script-driven.
const scriptShareRender = 25

// Heuristic implements a handful of rule-based render decisions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Markers of pages that build their content, or the content link, in script.
var scriptMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("document.write("),
	[]byte("window.location"),
}

// ShouldRender reports whether the page likely builds its content link in
// script, so a browser render could reveal it.
func (h *Heuristic) ShouldRender(resp document.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	if len(resp.Body) < h.BodyLengthThreshold && scriptDensityHigh(resp.Body) {
		return true
	}
	for _, marker := range scriptMarkers {
		if bytes.Contains(resp.Body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script blocks cover at least
// scriptShareRender percent of body. Unclosed tags run to the end.
func scriptDensityHigh(body []byte) bool {
	lower := bytes.ToLower(body)
	var covered int
	for rest := lower; ; {
		start := bytes.Index(rest, []byte("<script"))
		if start < 0 {
			break
		}
		block := rest[start:]
		end := bytes.Index(block, []byte("</script>"))
		if end < 0 {
			covered += len(block)
			break
		}
		end += len("</script>")
		covered += end
		rest = block[end:]
	}
	return len(lower) > 0 && covered*100/len(lower) >= scriptShareRender
}
