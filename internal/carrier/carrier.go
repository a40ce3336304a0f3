// Package carrier reads and writes the URL parameters that ferry transform
// metadata from a connector to the response pipeline. None of them may reach
// the origin server; Strip removes them before a request is forwarded.
//
// Extractors return (nil, nil) when their carrier is absent and an error
// wrapping ErrMalformed when it is present but unusable.
package carrier

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/transform"
)

var ErrMalformed = errors.New("malformed carrier parameter")

// Query carriers.
const (
	XORKey        = "xor_key"
	XORLimit      = "xor_limit"
	ScrambleW     = "scramble_w"
	ScrambleH     = "scramble_h"
	ScrambleOrder = "scramble_order"
)

var queryNames = []string{XORKey, XORLimit, ScrambleW, ScrambleH, ScrambleOrder}

// Applicable reports whether u carries any recognized carrier.
func Applicable(u *url.URL) bool {
	q := u.Query()
	for _, name := range queryNames {
		if q.Has(name) {
			return true
		}
	}

	for _, seg := range fragmentSegments(u) {
		name, _, _ := strings.Cut(seg, "=")
		switch name {
		case FragmentKey, FragmentIV, FragmentTiles, FragmentCompanion:
			return true
		}
	}

	return false
}

// Strip returns a copy of u without carrier query parameters and without a
// fragment. Other query parameters keep their order and encoding.
func Strip(u *url.URL) *url.URL {
	out := *u
	out.Fragment = ""
	out.RawFragment = ""

	if out.RawQuery == "" {
		return &out
	}

	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(out.RawQuery, "&") {
		name, _, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil && isCarrier(n) {
			continue
		}
		kept = append(kept, pair)
	}
	out.RawQuery = strings.Join(kept, "&")

	return &out
}

// Carry returns a copy of to with the carriers of from attached. Carriers
// already on to are replaced.
func Carry(from, to *url.URL) *url.URL {
	out := Strip(to)

	var pairs []string
	if out.RawQuery != "" {
		pairs = append(pairs, out.RawQuery)
	}
	for _, pair := range strings.Split(from.RawQuery, "&") {
		name, _, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil && isCarrier(n) {
			pairs = append(pairs, pair)
		}
	}
	out.RawQuery = strings.Join(pairs, "&")
	out.Fragment = from.Fragment
	out.RawFragment = from.RawFragment

	return out
}

func isCarrier(name string) bool {
	for _, n := range queryNames {
		if n == name {
			return true
		}
	}
	return false
}

// Obfuscation extracts xor_key and xor_limit. defaultLimit applies when
// xor_limit is absent.
func Obfuscation(u *url.URL, defaultLimit int) (transform.Params, error) {
	q := u.Query()
	if !q.Has(XORKey) {
		return nil, nil
	}

	key, err := strconv.Atoi(q.Get(XORKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformed, XORKey, q.Get(XORKey))
	}

	limit := defaultLimit
	if q.Has(XORLimit) {
		limit, err = strconv.Atoi(q.Get(XORLimit))
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrMalformed, XORLimit, q.Get(XORLimit))
		}
	}

	return transform.ObfuscationParams{Key: key, Limit: limit}, nil
}

// TileScramble extracts scramble_w, scramble_h and scramble_order.
func TileScramble(u *url.URL) (transform.Params, error) {
	q := u.Query()
	if !q.Has(ScrambleW) && !q.Has(ScrambleH) && !q.Has(ScrambleOrder) {
		return nil, nil
	}

	w, err := strconv.Atoi(q.Get(ScrambleW))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformed, ScrambleW, q.Get(ScrambleW))
	}
	h, err := strconv.Atoi(q.Get(ScrambleH))
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrMalformed, ScrambleH, q.Get(ScrambleH))
	}
	perm, err := ParseIntList(q.Get(ScrambleOrder))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, ScrambleOrder, err)
	}

	return transform.TileScrambleParams{Permutation: perm, GridWidth: w, GridHeight: h}, nil
}

// ParseIntList parses a comma-separated list of decimal integers.
func ParseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty list")
	}

	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}

	return out, nil
}

// WithObfuscation adds obfuscation carriers to rawURL. A limit of zero is
// omitted so the pipeline default applies.
func WithObfuscation(rawURL string, key, limit int) (string, error) {
	return withQuery(rawURL, func(q url.Values) {
		q.Set(XORKey, strconv.Itoa(key))
		if limit != 0 {
			q.Set(XORLimit, strconv.Itoa(limit))
		}
	})
}

// WithTileScramble adds grid scramble carriers to rawURL.
func WithTileScramble(rawURL string, p transform.TileScrambleParams) (string, error) {
	return withQuery(rawURL, func(q url.Values) {
		q.Set(ScrambleW, strconv.Itoa(p.GridWidth))
		q.Set(ScrambleH, strconv.Itoa(p.GridHeight))
		q.Set(ScrambleOrder, joinInts(p.Permutation))
	})
}

func withQuery(rawURL string, set func(url.Values)) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	set(q)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
