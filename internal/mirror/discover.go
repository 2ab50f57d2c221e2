package mirror

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/docresolver/internal/document"
)

// DefaultPattern matches the host names of the known mirror family.
const DefaultPattern = `sci-hub\.[a-z]{2,4}`

// Discover fetches the aggregator page and returns every distinct mirror host
// matching pattern as an https base URL. Hosts appear in page order, but
// callers should only rely on the first being attempted first.
func Discover(ctx context.Context, fetcher document.Fetcher, aggregatorURL, pattern string) ([]string, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("discover mirrors: fetcher is required")
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(`(?i)\b(?:[a-z0-9-]+\.)*` + pattern + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile mirror pattern: %w", err)
	}
	resp, err := fetcher.Fetch(ctx, document.FetchRequest{URL: aggregatorURL})
	if err != nil {
		return nil, fmt.Errorf("fetch aggregator %s: %w", aggregatorURL, err)
	}
	hosts, err := extractHosts(resp.Body, re)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no mirrors found at %s: %w", aggregatorURL, document.ErrMirrorsExhausted)
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, "https://"+h)
	}
	return out, nil
}

func extractHosts(body []byte, re *regexp.Regexp) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse aggregator page: %w", err)
	}
	var hosts []string
	seen := make(map[string]struct{})
	add := func(candidate string) {
		for _, m := range re.FindAllString(candidate, -1) {
			h := strings.ToLower(m)
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			hosts = append(hosts, h)
		}
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if u, perr := url.Parse(href); perr == nil && u.Hostname() != "" {
				add(u.Hostname())
			}
		}
		add(s.Text())
	})
	if len(hosts) == 0 {
		add(doc.Text())
	}
	return hosts, nil
}
