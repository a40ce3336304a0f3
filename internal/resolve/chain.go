// Package resolve turns a content id into an ordered page list for sites
// that need several dependent requests to get there:
//
//	token -> content metadata -> preprocess descriptor -> container -> manifest
//
// Steps run strictly one after another. Any unexpected response aborts the
// whole chain with a *StepError; callers never see a partial page list.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/carrier"
)

type Step int

const (
	StepToken Step = iota + 1
	StepContent
	StepPreprocess
	StepContainer
	StepManifest
)

func (s Step) String() string {
	switch s {
	case StepToken:
		return "access token"
	case StepContent:
		return "content metadata"
	case StepPreprocess:
		return "preprocess descriptor"
	case StepContainer:
		return "container index"
	case StepManifest:
		return "page manifest"
	default:
		return fmt.Sprintf("step %d", int(s))
	}
}

var (
	ErrMissingField = errors.New("missing expected field")
	ErrEmpty        = errors.New("empty enumeration")
)

type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("could not find %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ResolvedPage is one page in reading order. Reference is an image URL that
// may carry carrier parameters for the response pipeline.
type ResolvedPage struct {
	Index     int
	Reference string
}

type Options struct {
	API    string
	Client *http.Client
	// Contents memoizes content id -> content URL across chapters.
	Contents *cache.Memo[string, string]
	// ObfuscationLimit is attached when the descriptor has no limit.
	ObfuscationLimit int
	Logger           interface {
		Debugf(string, ...any)
	}
}

type Chain struct {
	api      string
	client   *http.Client
	contents *cache.Memo[string, string]
	limit    int
	log      interface{ Debugf(string, ...any) }
}

func New(opts Options) *Chain {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	contents := opts.Contents
	if contents == nil {
		contents = cache.New[string, string](cache.Options{})
	}

	return &Chain{
		api:      strings.TrimRight(opts.API, "/"),
		client:   client,
		contents: contents,
		limit:    opts.ObfuscationLimit,
		log:      opts.Logger,
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

type contentResponse struct {
	ContentURL string `json:"content_url"`
}

type preprocessResponse struct {
	ObfuscationKey *int `json:"obfuscation_key"`
	Limit          *int `json:"limit"`
}

// Resolve runs the full chain for contentID.
func (c *Chain) Resolve(ctx context.Context, contentID string) ([]ResolvedPage, error) {
	if contentID == "" {
		return nil, &StepError{Step: StepToken, Err: fmt.Errorf("%w: content id", ErrMissingField)}
	}

	token, err := c.token(ctx, contentID)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepContent, Err: err}
	}
	base, err := c.contents.GetOrLoad(ctx, contentID, func(ctx context.Context) (string, error) {
		return c.contentURL(ctx, contentID, token)
	})
	if err != nil {
		var se *StepError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &StepError{Step: StepContent, Err: err}
	}
	c.debugf("resolve: content %s at %s\n", contentID, base)

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepPreprocess, Err: err}
	}
	key, limit, err := c.preprocess(ctx, base)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepContainer, Err: err}
	}
	rootfile, err := c.container(ctx, base)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepManifest, Err: err}
	}
	images, err := c.manifest(ctx, base, rootfile)
	if err != nil {
		return nil, err
	}

	pages := make([]ResolvedPage, 0, len(images))
	for i, img := range images {
		ref, err := carrier.WithObfuscation(img, key, limit)
		if err != nil {
			return nil, &StepError{Step: StepManifest, Err: err}
		}
		pages = append(pages, ResolvedPage{Index: i, Reference: ref})
	}

	return pages, nil
}

func (c *Chain) token(ctx context.Context, contentID string) (string, error) {
	var tr tokenResponse
	u := c.api + "/token?" + url.Values{"cid": {contentID}}.Encode()
	if err := c.getJSON(ctx, u, &tr); err != nil {
		return "", &StepError{Step: StepToken, Err: err}
	}
	if tr.Token == "" {
		return "", &StepError{Step: StepToken, Err: fmt.Errorf("%w: token", ErrMissingField)}
	}

	return tr.Token, nil
}

func (c *Chain) contentURL(ctx context.Context, contentID, token string) (string, error) {
	var cr contentResponse
	u := c.api + "/content?" + url.Values{"cid": {contentID}, "token": {token}}.Encode()
	if err := c.getJSON(ctx, u, &cr); err != nil {
		return "", &StepError{Step: StepContent, Err: err}
	}
	if cr.ContentURL == "" {
		return "", cache.Permanent(&StepError{Step: StepContent, Err: fmt.Errorf("%w: content_url", ErrMissingField)})
	}

	base := cr.ContentURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return base, nil
}

func (c *Chain) preprocess(ctx context.Context, base string) (key, limit int, err error) {
	var pr preprocessResponse
	if err := c.getJSON(ctx, base+"preprocess.json", &pr); err != nil {
		return 0, 0, &StepError{Step: StepPreprocess, Err: err}
	}
	if pr.ObfuscationKey == nil {
		return 0, 0, &StepError{Step: StepPreprocess, Err: fmt.Errorf("%w: obfuscation_key", ErrMissingField)}
	}

	limit = c.limit
	if pr.Limit != nil {
		limit = *pr.Limit
	}

	return *pr.ObfuscationKey, limit, nil
}

func (c *Chain) container(ctx context.Context, base string) (string, error) {
	doc, err := c.getDocument(ctx, base+"META-INF/container.xml")
	if err != nil {
		return "", &StepError{Step: StepContainer, Err: err}
	}

	rootfile, ok := doc.Find("rootfile").First().Attr("full-path")
	if !ok || strings.TrimSpace(rootfile) == "" {
		return "", &StepError{Step: StepContainer, Err: fmt.Errorf("%w: rootfile full-path", ErrMissingField)}
	}

	return strings.TrimSpace(rootfile), nil
}

// manifest returns absolute image URLs from the OPF manifest ordered by
// file path.
func (c *Chain) manifest(ctx context.Context, base, rootfile string) ([]string, error) {
	opfURL, err := url.Parse(base + strings.TrimPrefix(rootfile, "/"))
	if err != nil {
		return nil, &StepError{Step: StepManifest, Err: err}
	}

	doc, err := c.getDocument(ctx, opfURL.String())
	if err != nil {
		return nil, &StepError{Step: StepManifest, Err: err}
	}

	var hrefs []string
	doc.Find("manifest item").Each(func(_ int, s *goquery.Selection) {
		mediaType := strings.ToLower(s.AttrOr("media-type", ""))
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || !strings.HasPrefix(mediaType, "image/") {
			return
		}
		hrefs = append(hrefs, href)
	})
	if len(hrefs) == 0 {
		return nil, &StepError{Step: StepManifest, Err: fmt.Errorf("%w: no image items in %s", ErrEmpty, path.Base(opfURL.Path))}
	}

	images := make([]string, 0, len(hrefs))
	for _, h := range hrefs {
		ref, err := url.Parse(h)
		if err != nil {
			return nil, &StepError{Step: StepManifest, Err: err}
		}
		images = append(images, opfURL.ResolveReference(ref).String())
	}
	sort.Strings(images)

	return images, nil
}

func (c *Chain) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	c.debugf("resolve: GET %s\n", req.URL.Redacted())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", req.URL.Redacted(), resp.StatusCode)
	}

	return resp, nil
}

func (c *Chain) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}

	return nil
}

func (c *Chain) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	return doc, nil
}

func (c *Chain) debugf(format string, args ...any) {
	if c.log != nil {
		c.log.Debugf(format, args...)
	}
}
