package carrier

import (
	"encoding/hex"
	"fmt"
	"image"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/decrypt"
	"github.com/brogergvhs/mangapipe/internal/transform"
)

// Fragment carriers. Segments are separated by '#' and read name=value.
const (
	FragmentKey       = "key"
	FragmentIV        = "iv"
	FragmentTiles     = "tiles"
	FragmentCompanion = "companion"
)

func fragmentSegments(u *url.URL) []string {
	if u.Fragment == "" {
		return nil
	}
	return strings.Split(u.Fragment, "#")
}

func fragmentValue(u *url.URL, name string) (string, bool) {
	prefix := name + "="
	for _, seg := range fragmentSegments(u) {
		if strings.HasPrefix(seg, prefix) {
			return strings.TrimPrefix(seg, prefix), true
		}
	}
	return "", false
}

// HasFragment reports whether u carries the named fragment segment.
func HasFragment(u *url.URL, name string) bool {
	_, ok := fragmentValue(u, name)
	return ok
}

// Cipher extracts key=<hex>#iv=<hex>. The key segment must come first and
// the iv segment must follow it directly.
func Cipher(u *url.URL) (transform.Params, error) {
	segs := fragmentSegments(u)

	for i, seg := range segs {
		name, value, _ := strings.Cut(seg, "=")
		switch name {
		case FragmentIV:
			return nil, fmt.Errorf("%w: %s segment before %s", ErrMalformed, FragmentIV, FragmentKey)
		case FragmentKey:
		default:
			continue
		}

		if i+1 >= len(segs) || !strings.HasPrefix(segs[i+1], FragmentIV+"=") {
			return nil, fmt.Errorf("%w: %s segment without %s", ErrMalformed, FragmentKey, FragmentIV)
		}

		key, err := decrypt.ParseHex(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, FragmentKey, err)
		}
		iv, err := decrypt.ParseHex(strings.TrimPrefix(segs[i+1], FragmentIV+"="))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, FragmentIV, err)
		}

		return transform.CipherParams{Key: key, IV: iv, Algorithm: transform.AESCBCPKCS7}, nil
	}

	return nil, nil
}

// Composite extracts tiles=W,H|id:x:y:w:h;...|dst:src;...
func Composite(u *url.URL) (transform.Params, error) {
	desc, ok := fragmentValue(u, FragmentTiles)
	if !ok {
		return nil, nil
	}

	p, err := ParseTileDescriptor(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, FragmentTiles, err)
	}

	return p, nil
}

// ParseTileDescriptor parses the composite layout encoding.
func ParseTileDescriptor(desc string) (transform.CompositeDescrambleParams, error) {
	var p transform.CompositeDescrambleParams

	parts := strings.Split(desc, "|")
	if len(parts) != 3 {
		return p, fmt.Errorf("want 3 sections, got %d", len(parts))
	}

	size, err := ParseIntList(parts[0])
	if err != nil || len(size) != 2 {
		return p, fmt.Errorf("bad size %q", parts[0])
	}
	p.SourceWidth, p.SourceHeight = size[0], size[1]

	p.Tiles = make(map[string]image.Rectangle)
	for _, t := range splitNonEmpty(parts[1], ";") {
		f := strings.Split(t, ":")
		if len(f) != 5 || f[0] == "" {
			return p, fmt.Errorf("bad tile %q", t)
		}
		n := make([]int, 4)
		for i, s := range f[1:] {
			if n[i], err = strconv.Atoi(s); err != nil {
				return p, fmt.Errorf("bad tile %q", t)
			}
		}
		if n[2] <= 0 || n[3] <= 0 {
			return p, fmt.Errorf("empty tile %q", t)
		}
		p.Tiles[f[0]] = image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3])
	}

	p.Permutation = make(map[string]string)
	for _, m := range splitNonEmpty(parts[2], ";") {
		dst, src, ok := strings.Cut(m, ":")
		if !ok || dst == "" || src == "" {
			return p, fmt.Errorf("bad mapping %q", m)
		}
		p.Permutation[dst] = src
	}

	if len(p.Tiles) == 0 || len(p.Permutation) == 0 {
		return p, fmt.Errorf("empty layout")
	}

	return p, nil
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CompanionPage extracts companion=<pageNo>. ok is false when absent.
func CompanionPage(u *url.URL) (pageNo int, ok bool, err error) {
	v, found := fragmentValue(u, FragmentCompanion)
	if !found {
		return 0, false, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrMalformed, FragmentCompanion, v)
	}

	return n, true, nil
}

// WithCipher appends key and iv fragment segments to rawURL.
func WithCipher(rawURL string, key, iv []byte) string {
	return appendFragment(rawURL,
		FragmentKey+"="+hex.EncodeToString(key),
		FragmentIV+"="+hex.EncodeToString(iv))
}

// WithCompanion asks the pipeline to read scramble data for pageNo from the
// XML documents next to the image.
func WithCompanion(rawURL string, pageNo int) string {
	return appendFragment(rawURL, FragmentCompanion+"="+strconv.Itoa(pageNo))
}

// WithTiles appends a composite layout descriptor.
func WithTiles(rawURL string, p transform.CompositeDescrambleParams) string {
	var tiles, perm []string
	for id, r := range p.Tiles {
		tiles = append(tiles, fmt.Sprintf("%s:%d:%d:%d:%d", id, r.Min.X, r.Min.Y, r.Dx(), r.Dy()))
	}
	for dst, src := range p.Permutation {
		perm = append(perm, dst+":"+src)
	}
	sort.Strings(tiles)
	sort.Strings(perm)

	desc := fmt.Sprintf("%d,%d|%s|%s", p.SourceWidth, p.SourceHeight,
		strings.Join(tiles, ";"), strings.Join(perm, ";"))

	return appendFragment(rawURL, FragmentTiles+"="+desc)
}

func appendFragment(rawURL string, segs ...string) string {
	return rawURL + "#" + strings.Join(segs, "#")
}
