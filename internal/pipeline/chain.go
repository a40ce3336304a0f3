// Package pipeline rewrites image responses on their way back from the
// network. Connectors put transform parameters into request URLs; the Chain
// strips them before forwarding, then applies the matching transforms to the
// response body in a fixed order.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/transform"
)

type Logger interface {
	Debugf(string, ...any)
	Warnf(string, ...any)
}

// Exchange is one intercepted request/response pair.
type Exchange struct {
	// URL is the original request URL, carriers included.
	URL *url.URL
	// Forwarded is the URL actually sent.
	Forwarded *url.URL
	Header    http.Header
	Body      *Body
}

// Interceptor transforms a response when its carrier is present.
type Interceptor interface {
	Name() string
	// Order fixes the position in the chain; lower runs first.
	Order() int
	Applicable(u *url.URL) bool
	Apply(ctx context.Context, x *Exchange) error
}

type skipError struct{ err error }

func (e *skipError) Error() string { return e.err.Error() }
func (e *skipError) Unwrap() error { return e.err }

// skip makes the chain log err and continue with the next interceptor.
func skip(err error) error { return &skipError{err: err} }

type Chain struct {
	base         http.RoundTripper
	interceptors []Interceptor
	log          Logger

	obfuscationLimit int
	faces            *cache.Memo[string, carrier.Face]
}

type Option func(*Chain)

func WithLogger(l Logger) Option {
	return func(c *Chain) { c.log = l }
}

// WithObfuscationLimit sets the prefix length used when xor_limit is absent.
func WithObfuscationLimit(n int) Option {
	return func(c *Chain) { c.obfuscationLimit = n }
}

// WithFaceCache shares the face document cache between chains.
func WithFaceCache(m *cache.Memo[string, carrier.Face]) Option {
	return func(c *Chain) { c.faces = m }
}

// WithInterceptor adds a custom interceptor alongside the built-in ones.
func WithInterceptor(ic Interceptor) Option {
	return func(c *Chain) { c.interceptors = append(c.interceptors, ic) }
}

// New builds a chain in front of base with the built-in interceptors:
// decrypt, deobfuscate, composite, companion and tile descramble.
func New(base http.RoundTripper, opts ...Option) *Chain {
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Chain{
		base:             base,
		obfuscationLimit: transform.DefaultObfuscationLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.faces == nil {
		c.faces = cache.New[string, carrier.Face](cache.Options{Size: 256, TTL: cache.DefaultTTL, MaxAttempts: 1})
	}

	c.interceptors = append(c.interceptors,
		decryptInterceptor{},
		deobfuscateInterceptor{limit: c.obfuscationLimit},
		compositeInterceptor{},
		&companionInterceptor{base: c.base, faces: c.faces},
		tileInterceptor{},
	)
	sort.SliceStable(c.interceptors, func(i, j int) bool {
		return c.interceptors[i].Order() < c.interceptors[j].Order()
	})

	return c
}

// Interceptors lists the chain in execution order.
func (c *Chain) Interceptors() []Interceptor {
	return append([]Interceptor(nil), c.interceptors...)
}

func (c *Chain) RoundTrip(req *http.Request) (*http.Response, error) {
	var active []Interceptor
	for _, ic := range c.interceptors {
		if ic.Applicable(req.URL) {
			active = append(active, ic)
		}
	}
	if len(active) == 0 && !carrier.Applicable(req.URL) {
		return c.base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.URL = carrier.Strip(req.URL)

	if len(active) == 0 {
		c.warnf("pipeline: incomplete transform parameters on %s, forwarding without them\n", out.URL.Redacted())
		return c.base.RoundTrip(out)
	}

	resp, err := c.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.debugf("pipeline: %s returned %d, passing through\n", out.URL.Redacted(), resp.StatusCode)
		return resp, nil
	}

	x := &Exchange{
		URL:       req.URL,
		Forwarded: out.URL,
		Header:    out.Header,
		Body:      newBody(resp.Body, resp.Header.Get("Content-Type")),
	}

	for _, ic := range active {
		err := ic.Apply(req.Context(), x)
		if err == nil {
			c.debugf("pipeline: %s applied to %s\n", ic.Name(), out.URL.Redacted())
			continue
		}

		var se *skipError
		if errors.As(err, &se) {
			c.warnf("pipeline: skipping %s for %s: %v\n", ic.Name(), out.URL.Redacted(), se.err)
			continue
		}

		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", ic.Name(), out.URL.Redacted(), err)
	}

	return rebuild(resp, x.Body)
}

// rebuild keeps status and headers, recomputing Content-Type and
// Content-Length for the new body.
func rebuild(resp *http.Response, body *Body) (*http.Response, error) {
	data, err := body.Bytes()
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read transformed body: %w", err)
	}

	out := *resp
	out.Header = resp.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if ct := body.ContentType(); ct != "" {
		out.Header.Set("Content-Type", ct)
	}
	out.Header.Set("Content-Length", strconv.Itoa(len(data)))
	out.ContentLength = int64(len(data))
	out.TransferEncoding = nil
	out.Body = io.NopCloser(bytes.NewReader(data))

	return &out, nil
}

func (c *Chain) debugf(format string, args ...any) {
	if c.log != nil {
		c.log.Debugf(format, args...)
	}
}

func (c *Chain) warnf(format string, args ...any) {
	if c.log != nil {
		c.log.Warnf(format, args...)
	}
}
