package generic

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSized         = regexp.MustCompile(`[-_](\d{2,5})x(\d{2,5})`)
	reBackgroundURL = regexp.MustCompile(`url\((?:["']?)([^"')]+)(?:["']?)\)`)
	reLooseURLs     = regexp.MustCompile(`https?://[^\s"'<>]+`)

	nonPageHints = []string{"logo", "cover", "profile", "avatar", "banner", "icon"}
)

// pageSources lists the elements and attributes reader pages put image
// URLs in, lazy-load attributes included.
var pageSources = []struct {
	selector string
	attrs    []string
}{
	{"img", []string{"srcset", "src", "data-src", "data-lazy-src", "data-original"}},
	{"source[srcset]", []string{"srcset"}},
	{"a[href]", []string{"href"}},
}

// pageCandidate is one image URL found while scanning a chapter page. el is
// the element it was read from, nil when it came from a script or raw text.
type pageCandidate struct {
	url   string
	el    *goquery.Selection
	index int // data-index on el or an ancestor, -1 if none
}

// imageCollector gathers page image candidates and picks one URL per image.
type imageCollector struct {
	allowed *regexp.Regexp
	log     logger
	found   []pageCandidate
	seen    map[string]bool
}

func newImageCollector(allowed *regexp.Regexp, log logger) *imageCollector {
	return &imageCollector{
		allowed: allowed,
		log:     log,
		seen:    make(map[string]bool),
	}
}

func (c *imageCollector) add(raw string, el *goquery.Selection) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}

	p := strings.ToLower(u.Path)
	if !c.allowed.MatchString(p) {
		return
	}
	for _, hint := range nonPageHints {
		if strings.Contains(p, hint) {
			c.log.Debugf("skipping non-page image: %s", raw)
			return
		}
	}

	if c.seen[raw] {
		return
	}
	c.seen[raw] = true

	c.found = append(c.found, pageCandidate{url: raw, el: el, index: dataIndex(el)})
}

// scanDocument collects images referenced by elements under root and by
// inline background styles. It returns the number of new candidates.
func (c *imageCollector) scanDocument(root *goquery.Selection, base string) int {
	before := len(c.found)

	for _, src := range pageSources {
		root.Find(src.selector).Each(func(_ int, el *goquery.Selection) {
			for _, attr := range src.attrs {
				v := strings.TrimSpace(el.AttrOr(attr, ""))
				if v == "" {
					continue
				}
				if attr == "srcset" {
					for _, ref := range srcsetURLs(v) {
						c.add(resolve(base, ref), el)
					}
					continue
				}
				c.add(resolve(base, v), el)
			}
		})
	}

	root.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style := el.AttrOr("style", "")
		if !strings.Contains(strings.ToLower(style), "background-image") {
			return
		}
		for _, m := range reBackgroundURL.FindAllStringSubmatch(style, -1) {
			if ref := strings.TrimSpace(m[1]); ref != "" {
				c.add(resolve(base, ref), el)
			}
		}
	})

	return len(c.found) - before
}

// scanState walks decoded JSON state. Strings are either image URLs or
// rendered HTML fragments.
func (c *imageCollector) scanState(v any, base string) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		ls := strings.ToLower(s)
		switch {
		case strings.HasPrefix(ls, "http://"), strings.HasPrefix(ls, "https://"):
			c.add(s, nil)
		case looksLikeHTML(s):
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
				c.scanDocument(doc.Selection, base)
			}
		}
	case []any:
		for _, x := range t {
			c.scanState(x, base)
		}
	case map[string]any:
		for _, x := range t {
			c.scanState(x, base)
		}
	}
}

func (c *imageCollector) scanText(body string) {
	for _, u := range reLooseURLs.FindAllString(body, -1) {
		c.add(u, nil)
	}
}

// Finalize keeps one candidate per image: the first unsized variant, else
// the largest "-WxH" one. Pages with a data-index come first in index
// order, the rest in discovery order.
func (c *imageCollector) Finalize() []pageCandidate {
	var out []pageCandidate
	slot := map[string]int{}

	for _, cand := range c.found {
		key := variantKey(cand.url)
		i, ok := slot[key]
		if !ok {
			slot[key] = len(out)
			out = append(out, cand)
			continue
		}

		cur := &out[i]
		index := minIndex(cur.index, cand.index)
		if preferred(cand.url, cur.url) {
			if cand.el == nil {
				cand.el = cur.el
			}
			*cur = cand
		} else if cur.el == nil {
			cur.el = cand.el
		}
		cur.index = index
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].index, out[j].index
		return a >= 0 && (b < 0 || a < b)
	})

	return out
}

// variantKey identifies an image across its resized variants.
func variantKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	ext := path.Ext(u.Path)
	stem := reSized.ReplaceAllString(strings.TrimSuffix(u.Path, ext), "")

	return strings.TrimRight(stem, "-_") + ext
}

// preferred reports whether a should replace b as an image's URL.
func preferred(a, b string) bool {
	bArea, bSized := area(b)
	if !bSized {
		return false
	}
	aArea, aSized := area(a)

	return !aSized || aArea > bArea
}

func area(raw string) (int, bool) {
	m := reSized.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])

	return w * h, true
}

func minIndex(a, b int) int {
	if a < 0 || (b >= 0 && b < a) {
		return b
	}
	return a
}

func dataIndex(el *goquery.Selection) int {
	if el == nil {
		return -1
	}

	holder := el
	if _, ok := el.Attr("data-index"); !ok {
		holder = el.ParentsFiltered("[data-index]").First()
	}

	n, err := strconv.Atoi(strings.TrimSpace(holder.AttrOr("data-index", "")))
	if err != nil {
		return -1
	}
	return n
}

func srcsetURLs(srcset string) []string {
	var out []string
	for _, part := range strings.Split(srcset, ",") {
		if fields := strings.Fields(part); len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func looksLikeHTML(s string) bool {
	for _, tag := range []string{"<img", "<a", "<div", "<picture", "<source"} {
		if strings.Contains(s, tag) {
			return true
		}
	}
	return false
}

func normalizeExtList(list []string) []string {
	out := []string{}
	for _, ext := range list {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			out = append(out, ext)
		}
	}

	return out
}

func buildExtRegex(exts []string) *regexp.Regexp {
	if len(exts) == 0 {
		return regexp.MustCompile(`$a`)
	}

	return regexp.MustCompile(`(?i)\.(` + strings.Join(exts, "|") + `)$`)
}

// resolve makes raw absolute against base; unparsable input is returned as is.
func resolve(base, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return u.String()
	}

	b, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return b.ResolveReference(u).String()
}
