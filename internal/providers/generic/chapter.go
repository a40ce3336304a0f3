package generic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/mangapipe/internal/providers"
)

var (
	chapRe      = regexp.MustCompile(`(?i)(?:vol(?:ume)?[_\-\s]*\d+[_\-\s]*)?(?:chapter|ch)[_\-\s]*0*([0-9]+)(?:[_\-\s]*([.\-])[_\-\s]*([0-9]+))?`)
	chapterDash = regexp.MustCompile(`chapter[_\-]?0*([0-9]+)[_\-]?([0-9]+)?`)

	volChapter  = regexp.MustCompile(`vol[_\-]?(\d+)[/_\-]ch[_\-]?(\d+(?:\.\d+)?)`)
	chShort     = regexp.MustCompile(`(?:^|[/\-_])ch[_\-]?(\d+(?:\.\d+)?)`)
	plainNumber = regexp.MustCompile(`[/\-](\d+(?:\.\d+)?)(?:$|[/\-_])`)
	titlePrefix = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[.\- ]`)

	reLikelyChapter = regexp.MustCompile(`(?i)(?:^|[-_/])(?:ch|chapter)[-_]?\d+`)
)

// chapterLabel is the number parsed out of a chapter link.
type chapterLabel struct {
	main       int
	suffixType string // "", "." or "-"
	suffixNum  int
	label      string
}

func (l chapterLabel) chapter(u, title string) providers.Chapter {
	if title == "" {
		title = "Chapter " + l.label
	}
	return providers.Chapter{
		URL:        u,
		Title:      title,
		NumMain:    l.main,
		SuffixType: l.suffixType,
		SuffixNum:  l.suffixNum,
		Label:      l.label,
	}
}

// decimal splits "12.5" into main and fractional parts.
func decimal(s string) chapterLabel {
	whole, frac, ok := strings.Cut(s, ".")
	main, _ := strconv.Atoi(whole)
	if !ok {
		return chapterLabel{main: main, label: strconv.Itoa(main)}
	}

	sub, _ := strconv.Atoi(frac)
	return chapterLabel{main: main, suffixType: ".", suffixNum: sub, label: fmt.Sprintf("%d.%s", main, frac)}
}

// parseChapterLabel tries the URL patterns first and falls back to the
// link text.
func parseChapterLabel(href, title string) (chapterLabel, bool) {
	h := strings.ToLower(href)
	t := strings.ToLower(title)

	if !hasChapterKeywords(h, t) || isExcluded(h) {
		return chapterLabel{}, false
	}

	if m := chapterDash.FindStringSubmatch(h); m != nil {
		main, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			sub, _ := strconv.Atoi(m[2])
			return chapterLabel{main: main, suffixType: "-", suffixNum: sub, label: fmt.Sprintf("%d-%d", main, sub)}, true
		}
		return chapterLabel{main: main, label: strconv.Itoa(main)}, true
	}

	if m := volChapter.FindStringSubmatch(h); m != nil {
		l := decimal(m[2])
		vol, _ := strconv.Atoi(m[1])
		l.label = fmt.Sprintf("v%d-%s", vol, l.label)
		return l, true
	}

	if m := chShort.FindStringSubmatch(h); m != nil {
		return decimal(m[1]), true
	}

	if m := plainNumber.FindStringSubmatch(h); m != nil {
		return decimal(m[1]), true
	}

	if m := titlePrefix.FindStringSubmatch(title); m != nil {
		return decimal(m[1]), true
	}

	if m := chapRe.FindStringSubmatch(title); m != nil {
		main, _ := strconv.Atoi(m[1])
		if m[2] == "" {
			return chapterLabel{main: main, label: strconv.Itoa(main)}, true
		}
		sub, _ := strconv.Atoi(m[3])
		return chapterLabel{main: main, suffixType: m[2], suffixNum: sub, label: fmt.Sprintf("%d%s%d", main, m[2], sub)}, true
	}

	return chapterLabel{}, false
}

func hasChapterKeywords(h, t string) bool {
	for _, kw := range []string{"ch", "vol"} {
		if strings.Contains(h, kw) || strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isExcluded(h string) bool {
	return strings.Contains(h, "/u/") || strings.Contains(h, "/user/")
}

func looksLikeChapterLink(href, title string) bool {
	h := strings.ToLower(href)
	if reLikelyChapter.MatchString(h) || volChapter.MatchString(h) || chShort.MatchString(h) {
		return true
	}

	t := strings.ToLower(title)
	return strings.HasPrefix(t, "ch ") || strings.HasPrefix(t, "chapter ")
}

// scanChapterLinks collects chapters from links in sel. With strict set,
// every link is taken and unparseable labels fall back to list position.
func scanChapterLinks(sel *goquery.Selection, pageURL string, strict bool) []providers.Chapter {
	var out []providers.Chapter
	seen := map[string]bool{}

	sel.Each(func(i int, a *goquery.Selection) {
		if !a.Is("a[href]") {
			a = a.Find("a[href]").First()
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		title := strings.Join(strings.Fields(a.Text()), " ")

		if !strict && !looksLikeChapterLink(href, title) {
			return
		}

		l, ok := parseChapterLabel(href, title)
		if !ok {
			if !strict {
				return
			}
			l = chapterLabel{main: i + 1, label: strconv.Itoa(i + 1)}
		}

		u := resolve(pageURL, href)
		if seen[u] {
			return
		}
		seen[u] = true

		out = append(out, l.chapter(u, title))
	})

	providers.SortChapters(out)
	return out
}
