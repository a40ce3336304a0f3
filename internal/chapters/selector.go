package chapters

import (
	"fmt"
	"strconv"
	"strings"
)

// Selection picks chapters from a list. Only one field is honoured, in
// field order. Values refer to chapter labels ("12", "12.5"); plain
// integers fall back to 1-based list positions when no label matches.
type Selection struct {
	Chapter string
	Range   string // "3-7", inclusive, by chapter number
	List    string // "1,4,9.5"
}

func (s Selection) Empty() bool {
	return s.Chapter == "" && s.Range == "" && s.List == ""
}

func Filter(all []Chapter, sel Selection) ([]Chapter, error) {
	switch {
	case sel.Chapter != "":
		return pick(all, sel.Chapter), nil
	case sel.Range != "":
		return filterRange(all, sel.Range)
	case sel.List != "":
		var out []Chapter
		for _, n := range strings.Split(sel.List, ",") {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, pick(all, n)...)
			}
		}
		return out, nil
	default:
		return all, nil
	}
}

func pick(all []Chapter, ref string) []Chapter {
	var out []Chapter
	for _, ch := range all {
		if ch.Label == ref {
			out = append(out, ch)
		}
	}
	if len(out) > 0 {
		return out
	}

	if idx, err := strconv.Atoi(ref); err == nil && idx > 0 && idx <= len(all) {
		return []Chapter{all[idx-1]}
	}
	return nil
}

func filterRange(all []Chapter, rng string) ([]Chapter, error) {
	lo, hi, ok := strings.Cut(rng, "-")
	if !ok {
		return nil, fmt.Errorf("range %q: want <from>-<to>", rng)
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", rng, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", rng, err)
	}
	if start > end {
		return nil, fmt.Errorf("range %q: start after end", rng)
	}

	var out []Chapter
	for _, ch := range all {
		if n := ch.Number(); n >= start && n <= end {
			out = append(out, ch)
		}
	}
	return out, nil
}
