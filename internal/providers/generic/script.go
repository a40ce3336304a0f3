package generic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reJSVar  = regexp.MustCompile(`(?m)(?:var|let|const)\s+([A-Za-z0-9_]+)\s*=\s*["']?([\w\-\/\.]+)["']?;`)
	reJSURL  = regexp.MustCompile(`["'](\/[A-Za-z0-9\/\-\._]+)["']`)
	reJSCall = regexp.MustCompile(`(?:fetch|axios|post|get)\s*\(\s*["']([^"']+)["']`)
	reNuxt   = regexp.MustCompile(`window\.__NUXT__\s*=\s*(\{.*?});`)
)

// scriptHints is what inline scripts reveal about where a reader loads
// its pages from.
type scriptHints struct {
	Vars  map[string]string
	URLs  []string
	Calls []string
}

func extractScripts(doc *goquery.Document) scriptHints {
	var code strings.Builder
	doc.Find("script").Each(func(_ int, sc *goquery.Selection) {
		if t := sc.Text(); strings.TrimSpace(t) != "" {
			code.WriteString(t)
			code.WriteString("\n")
		}
	})

	return parseScript(code.String())
}

func parseScript(js string) scriptHints {
	out := scriptHints{Vars: map[string]string{}}

	for _, m := range reJSVar.FindAllStringSubmatch(js, -1) {
		out.Vars[m[1]] = m[2]
	}
	for _, m := range reJSURL.FindAllStringSubmatch(js, -1) {
		out.URLs = append(out.URLs, m[1])
	}
	for _, m := range reJSCall.FindAllStringSubmatch(js, -1) {
		out.Calls = append(out.Calls, m[1])
	}

	return out
}

// endpoints guesses chapter data URLs: chapter-ish base paths joined with
// id variables, plus every literal fetch target.
func (h scriptHints) endpoints() []string {
	var results []string

	for _, base := range h.URLs {
		if !strings.Contains(base, "chap") || !strings.HasSuffix(base, "/") {
			continue
		}
		for key, val := range h.Vars {
			if strings.Contains(strings.ToLower(key), "id") {
				results = append(results, base+val)
			}
		}
	}
	results = append(results, h.Calls...)

	seen := map[string]bool{}
	final := results[:0]
	for _, u := range results {
		if !seen[u] {
			seen[u] = true
			final = append(final, u)
		}
	}

	return final
}

// scanEmbeddedState feeds server-rendered state blobs into col.
func scanEmbeddedState(body, chapterURL string, col *imageCollector) {
	match := reNuxt.FindStringSubmatch(body)
	if len(match) < 2 {
		return
	}

	var raw map[string]any
	if json.Unmarshal([]byte(match[1]), &raw) == nil {
		col.log.Debugf("found embedded SSR state")
		col.scanState(raw, chapterURL)
	}
}

func (s *Source) probeScripts(ctx context.Context, chapterURL string, doc *goquery.Document, col *imageCollector) {
	candidates := extractScripts(doc).endpoints()
	s.log.Debugf("script endpoint candidates: %v", candidates)

	for _, path := range candidates {
		if ctx.Err() != nil {
			return
		}

		full := resolve(chapterURL, path)
		s.log.Debugf("probing %s", full)

		body, ok := s.probe(ctx, full, http.MethodPost)
		if !ok {
			body, ok = s.probe(ctx, full, http.MethodGet)
		}
		if !ok || !strings.HasPrefix(strings.TrimSpace(body), "{") {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			col.scanState(obj, chapterURL)
		}
	}
}

func (s *Source) probe(ctx context.Context, target, method string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	s.setReferer(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument))
	if err != nil {
		s.log.Debugf("reading %s: %v", target, err)
		return "", false
	}

	return string(b), true
}
