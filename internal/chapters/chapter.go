// Package chapters names chapter output on disk and picks chapters from a
// source's list.
package chapters

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/brogergvhs/mangapipe/internal/providers"
)

type Chapter struct {
	providers.Chapter
}

// Wrap adapts a source's chapter list.
func Wrap(in []providers.Chapter) []Chapter {
	out := make([]Chapter, len(in))
	for i, c := range in {
		out[i] = Chapter{Chapter: c}
	}
	return out
}

var (
	reUnderscore = regexp.MustCompile(`_+`)
	separators   = strings.NewReplacer(
		"•", "_",
		"-", "_",
		"—", "_",
		"–", "_",
		"/", "_",
		"\\", "_",
		".", "_",
		" ", "_",
		"(", "",
		")", "",
	)
)

// Sanitize turns s into a lower-case file name fragment.
func Sanitize(s string) string {
	s = separators.Replace(strings.ToLower(s))

	clean := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			clean = append(clean, r)
		}
	}

	return strings.Trim(reUnderscore.ReplaceAllString(string(clean), "_"), "_")
}

// Number is the chapter number as a float (12.5 for "12.5"), derived from
// the parsed label parts.
func (c Chapter) Number() float64 {
	n := float64(c.NumMain)
	if c.SuffixType == "." && c.SuffixNum > 0 {
		frac, err := strconv.ParseFloat("0."+strconv.Itoa(c.SuffixNum), 64)
		if err == nil {
			n += frac
		}
	}
	return n
}

func (c Chapter) baseName() string {
	lbl := Sanitize(c.Label)
	title := Sanitize(c.Title)

	switch {
	case lbl == "":
		return title
	case title != "" && title != lbl:
		return lbl + "_" + title
	default:
		return lbl
	}
}

func (c Chapter) FolderName() string {
	return c.baseName() + "_tmp"
}

func (c Chapter) OutputCBZ() string {
	return c.baseName() + ".cbz"
}

func (c Chapter) OutputCBZPath(out string) string {
	return filepath.Join(out, c.OutputCBZ())
}
