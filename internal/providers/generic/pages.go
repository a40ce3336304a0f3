package generic

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/decrypt"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/transform"
)

func (s *Source) selectedPages(doc *goquery.Document, chapterURL string) []providers.Page {
	var pages []providers.Page

	doc.Find(s.cfg.Selectors.Page).Each(func(_ int, el *goquery.Selection) {
		img := s.imageURL(el, chapterURL)
		if img == "" {
			return
		}

		pages = append(pages, providers.Page{
			Index:    len(pages),
			ImageURL: s.decorate(el, img),
		})
	})

	return pages
}

// decorate attaches every transform carried by el to ref. A malformed
// attribute only drops its own carrier.
func (s *Source) decorate(el *goquery.Selection, ref string) string {
	sel := s.cfg.Selectors
	attr := func(name string) (string, bool) {
		if name == "" {
			return "", false
		}
		v, ok := el.Attr(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	warn := func(kind string, err error) {
		s.log.Warnf("%s: ignoring %s carrier: %v", ref, kind, err)
	}

	if v, ok := attr(sel.XORKeyAttr); ok {
		key, err := strconv.Atoi(v)
		if err != nil {
			warn("obfuscation", err)
		} else if out, err := carrier.WithObfuscation(ref, key, 0); err != nil {
			warn("obfuscation", err)
		} else {
			ref = out
		}
	}

	if v, ok := attr(sel.ScrambleAttr); ok {
		if out, err := s.withScramble(ref, v); err != nil {
			warn("scramble", err)
		} else {
			ref = out
		}
	}

	keyHex, hasKey := attr(sel.CipherKeyAttr)
	ivHex, hasIV := attr(sel.CipherIVAttr)
	if hasKey && hasIV {
		key, kerr := decrypt.ParseHex(keyHex)
		iv, ierr := decrypt.ParseHex(ivHex)
		switch {
		case kerr != nil:
			warn("cipher", kerr)
		case ierr != nil:
			warn("cipher", ierr)
		default:
			ref = carrier.WithCipher(ref, key, iv)
		}
	}

	if v, ok := attr(sel.TilesAttr); ok {
		p, err := carrier.ParseTileDescriptor(v)
		if err != nil {
			warn("tiles", err)
		} else {
			ref = carrier.WithTiles(ref, p)
		}
	}

	if v, ok := attr(sel.CompanionAttr); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			warn("companion", fmt.Errorf("page number %q", v))
		} else {
			ref = carrier.WithCompanion(ref, n)
		}
	}

	return ref
}

func (s *Source) withScramble(ref, order string) (string, error) {
	gw, gh, err := parseGrid(orDefault(s.cfg.Selectors.ScrambleGrid, "4x4"))
	if err != nil {
		return "", err
	}

	perm, err := carrier.ParseIntList(order)
	if err != nil {
		return "", err
	}

	p := transform.TileScrambleParams{Permutation: perm, GridWidth: gw, GridHeight: gh}
	if !p.Valid() {
		return "", fmt.Errorf("permutation %q does not cover a %dx%d grid", order, gw, gh)
	}

	return carrier.WithTileScramble(ref, p)
}

func parseGrid(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("grid %q: want <w>x<h>", s)
	}
	gw, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || gw < 1 {
		return 0, 0, fmt.Errorf("grid %q: bad width", s)
	}
	gh, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || gh < 1 {
		return 0, 0, fmt.Errorf("grid %q: bad height", s)
	}
	return gw, gh, nil
}
