package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	onclickHref   = regexp.MustCompile(`location\.href\s*=\s*['"]([^'"]+)['"]`)
	scriptPDFPath = regexp.MustCompile(`['"]((?:https?:)?//?[^'"\s]+\.pdf(?:[?#][^'"\s]*)?)['"]`)
)

var frameSelectors = []string{
	"iframe#pdf",
	"embed#pdf",
	"#article iframe",
	"#article embed",
	"iframe[src]",
	"embed[src]",
}

var captchaMarkers = [][]byte{
	[]byte(`id="captcha"`),
	[]byte(`name="captcha"`),
	[]byte(`g-recaptcha`),
	[]byte(`h-captcha`),
	[]byte(`/captcha/`),
}

// FindDirectLink searches html for the embedded content link. Strategies are
// tried in order and the first one that yields anything wins. The result is
// not checked for fetchability.
func FindDirectLink(html []byte) Link {
	if len(bytes.TrimSpace(html)) == 0 {
		return None()
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return None()
	}
	for _, strategy := range []func(*goquery.Document) []string{
		fromFrames,
		fromOnclick,
		fromScripts,
		fromAnchors,
	} {
		if paths := dedupe(strategy(doc)); len(paths) > 0 {
			return Many(paths)
		}
	}
	return None()
}

// LooksLikeCaptcha reports whether html contains a captcha challenge.
func LooksLikeCaptcha(html []byte) bool {
	lower := bytes.ToLower(html)
	for _, marker := range captchaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func fromFrames(doc *goquery.Document) []string {
	for _, sel := range frameSelectors {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
				out = append(out, strings.TrimSpace(src))
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func fromOnclick(doc *goquery.Document) []string {
	var out []string
	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		handler, _ := s.Attr("onclick")
		for _, m := range onclickHref.FindAllStringSubmatch(handler, -1) {
			out = append(out, m[1])
		}
	})
	return out
}

func fromScripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range scriptPDFPath.FindAllStringSubmatch(s.Text(), -1) {
			out = append(out, m[1])
		}
	})
	return out
}

func fromAnchors(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if strings.HasSuffix(strings.ToLower(stripFragment(href)), ".pdf") {
			out = append(out, href)
		}
	})
	return out
}

func stripFragment(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
