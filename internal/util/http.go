package util

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"golang.org/x/time/rate"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/pipeline"
)

type HTTPClientOptions struct {
	Timeout    time.Duration
	UserAgent  string
	Cookie     string
	CookieFile string
	Referer    string
	Transport  http.RoundTripper

	// Cloudflare wraps the transport with browser-like TLS and headers.
	Cloudflare bool
	// RateLimit is requests per second across the client, 0 disables it.
	RateLimit float64
	RateBurst int

	// ObfuscationLimit is the pipeline default when a URL has no xor_limit.
	ObfuscationLimit int
	// Faces shares companion face documents between clients.
	Faces *cache.Memo[string, carrier.Face]

	DebugLogger pipeline.Logger
}

// NewHTTPClient builds a client whose responses pass through the transform
// pipeline. Requests flow
//
//	headers -> pipeline -> rate limit -> cloudflare -> network
//
// so companion documents fetched by the pipeline are throttled too.
func NewHTTPClient(opts HTTPClientOptions) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	var baseTransport http.RoundTripper
	if opts.Transport != nil {
		baseTransport = opts.Transport
	} else {
		baseTransport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DisableCompression:  false,
			MaxIdleConns:        100,
			MaxConnsPerHost:     100,
			MaxIdleConnsPerHost: 100,
			ForceAttemptHTTP2:   true,
		}
	}

	if opts.Cloudflare {
		baseTransport = cloudflarebp.AddCloudFlareByPass(baseTransport)
	}

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		baseTransport = &rateLimited{
			base:    baseTransport,
			limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		}
	}

	var chainOpts []pipeline.Option
	if opts.ObfuscationLimit != 0 {
		chainOpts = append(chainOpts, pipeline.WithObfuscationLimit(opts.ObfuscationLimit))
	}
	if opts.DebugLogger != nil {
		chainOpts = append(chainOpts, pipeline.WithLogger(opts.DebugLogger))
	}
	if opts.Faces != nil {
		chainOpts = append(chainOpts, pipeline.WithFaceCache(opts.Faces))
	}

	client := &http.Client{
		Timeout: opts.Timeout,
		Transport: roundTripper{
			base:         pipeline.New(baseTransport, chainOpts...),
			ua:           opts.UserAgent,
			referer:      opts.Referer,
			cookieHeader: joinCookies(opts.Cookie, opts.CookieFile),
			log:          opts.DebugLogger,
		},
		Jar:           jar,
		CheckRedirect: keepCarriers,
	}

	if opts.DebugLogger != nil {
		opts.DebugLogger.Debugf("HTTP client initialized (timeout=%s, ua=%q, cookieFile=%q, rate=%g, cloudflare=%t)\n",
			opts.Timeout, opts.UserAgent, opts.CookieFile, opts.RateLimit, opts.Cloudflare)
	}

	return client, nil
}

// keepCarriers re-attaches the transform carriers of the first request to
// each redirect target, so relocated images are still decoded. The Referer
// sent to the new location never includes them.
func keepCarriers(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}

	if carrier.Applicable(via[0].URL) {
		req.URL = carrier.Carry(via[0].URL, req.URL)
	}

	if ref := req.Header.Get("Referer"); ref != "" {
		if u, err := url.Parse(ref); err == nil && carrier.Applicable(u) {
			req.Header.Set("Referer", carrier.Strip(u).String())
		}
	}

	return nil
}

type roundTripper struct {
	base         http.RoundTripper
	ua           string
	referer      string
	cookieHeader string
	log          interface{ Debugf(string, ...any) }
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if rt.ua != "" {
		req.Header.Set("User-Agent", rt.ua)
	}
	if rt.referer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", rt.referer)
	}
	if rt.cookieHeader != "" && req.Header.Get("Cookie") == "" {
		req.Header.Set("Cookie", rt.cookieHeader)
	}

	if rt.log != nil {
		rt.log.Debugf("HTTP %s %s", req.Method, carrier.Strip(req.URL).Redacted())
	}

	return rt.base.RoundTrip(req)
}

type rateLimited struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (rt *rateLimited) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rt.base.RoundTrip(req)
}

func joinCookies(inline, file string) string {
	s := strings.TrimSpace(inline)
	if file != "" {
		if b, err := os.ReadFile(file); err == nil {
			// first non-empty line
			sc := bufio.NewScanner(strings.NewReader(string(b)))
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line != "" {
					if s == "" {
						s = line
					} else {
						s = s + "; " + line
					}
					break
				}
			}
		}
	}

	return s
}

// DoWithRetry executes request with simple retry policy. Requests are
// retried on transport errors and 5xx; the context cuts the wait short.
func DoWithRetry(c *http.Client, req *http.Request, attempts int, backoff time.Duration) (*http.Response, error) {
	var resp *http.Response
	var err error

	for i := 1; i <= attempts; i++ {
		resp, err = c.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 500 {
			return resp, nil
		}
		if i == attempts {
			break
		}

		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff * time.Duration(i)):
		}
	}

	if err == nil && resp != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d after %d attempts", resp.StatusCode, attempts)
	}

	return nil, err
}

func PickUserAgent(override string) string {
	if override != "" {
		return override
	}

	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
}
