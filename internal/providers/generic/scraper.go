package generic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/mangapipe/internal/config"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/util"
)

const maxDocument = 8 << 20

var ErrNoListing = errors.New("listing not configured")

type logger interface {
	Debugf(string, ...any)
	Warnf(string, ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type Options struct {
	AllowExt []string
	// ProbeScripts follows endpoints found in inline scripts when the page
	// markup has no images.
	ProbeScripts bool
	Logger       logger
	// Attempts and Backoff drive the retry on 5xx and transport errors.
	Attempts int
	Backoff  time.Duration
}

type Source struct {
	cfg     config.SourceConfig
	client  *http.Client
	log     logger
	allowed *regexp.Regexp
	vocab   providers.StatusVocabulary
	host    string
	probeJS bool

	attempts int
	backoff  time.Duration
}

var (
	_ providers.Source     = (*Source)(nil)
	_ providers.Detailer   = (*Source)(nil)
	_ providers.URLMatcher = (*Source)(nil)
)

func New(cfg config.SourceConfig, client *http.Client, opts Options) (*Source, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("source %s: invalid base_url %q", cfg.Name, cfg.BaseURL)
	}

	vocab, err := providers.DefaultVocabulary.Extend(cfg.Status)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	if client == nil {
		client = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	exts := opts.AllowExt
	if len(exts) == 0 {
		exts = []string{"jpg", "jpeg", "png", "webp", "gif"}
	}

	return &Source{
		cfg:      cfg,
		client:   client,
		log:      log,
		allowed:  buildExtRegex(normalizeExtList(exts)),
		vocab:    vocab,
		host:     strings.ToLower(base.Hostname()),
		probeJS:  opts.ProbeScripts,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}, nil
}

func (s *Source) Name() string { return s.cfg.Name }

// Referer is sent with every request, page images included.
func (s *Source) Referer() string {
	if s.cfg.Referer != "" {
		return s.cfg.Referer
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/"
}

func (s *Source) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == s.host || strings.HasSuffix(h, "."+s.host)
}

func (s *Source) setReferer(req *http.Request) {
	if req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", s.Referer())
	}
}

func (s *Source) fetch(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	s.setReferer(req)

	s.log.Debugf("GET %s", target)
	resp, err := util.DoWithRetry(s.client, req, s.attempts, s.backoff)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	if resp.StatusCode >= 400 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", target, resp.StatusCode)
	}

	return resp, nil
}

func (s *Source) fetchDOM(ctx context.Context, target string) (*goquery.Document, string, error) {
	resp, err := s.fetch(ctx, target)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument))
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", target, err)
	}

	return doc, string(body), nil
}

func (s *Source) absolute(ref string) string {
	return resolve(strings.TrimRight(s.cfg.BaseURL, "/")+"/", ref)
}

func (s *Source) listingURL(path string, page int, query string) string {
	path = strings.ReplaceAll(path, "{page}", strconv.Itoa(page))
	path = strings.ReplaceAll(path, "{query}", url.QueryEscape(query))
	return s.absolute(path)
}

func (s *Source) FetchPopular(ctx context.Context, page int) (providers.MangasPage, error) {
	return s.fetchListing(ctx, "popular", s.cfg.PopularPath, page, "")
}

func (s *Source) FetchLatest(ctx context.Context, page int) (providers.MangasPage, error) {
	return s.fetchListing(ctx, "latest", s.cfg.LatestPath, page, "")
}

func (s *Source) FetchSearch(ctx context.Context, query string, page int) (providers.MangasPage, error) {
	return s.fetchListing(ctx, "search", s.cfg.SearchPath, page, query)
}

func (s *Source) fetchListing(ctx context.Context, kind, path string, page int, query string) (providers.MangasPage, error) {
	sel := s.cfg.Selectors
	if path == "" || sel.MangaItem == "" {
		return providers.MangasPage{}, fmt.Errorf("%s %s: %w", s.cfg.Name, kind, ErrNoListing)
	}
	if page < 1 {
		page = 1
	}

	target := s.listingURL(path, page, query)
	doc, _, err := s.fetchDOM(ctx, target)
	if err != nil {
		return providers.MangasPage{}, err
	}

	var out providers.MangasPage
	doc.Find(sel.MangaItem).Each(func(_ int, item *goquery.Selection) {
		link := within(item, sel.MangaURL)
		if !link.Is("a") {
			link = link.Find("a[href]").First()
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}

		title := text(within(item, sel.MangaTitle))
		if title == "" {
			title = strings.TrimSpace(link.AttrOr("title", ""))
		}

		out.Mangas = append(out.Mangas, providers.Manga{
			URL:          resolve(target, href),
			Title:        title,
			ThumbnailURL: s.imageURL(within(item, orDefault(sel.MangaThumbnail, "img")), target),
		})
	})

	if sel.NextPage != "" {
		out.HasNext = doc.Find(sel.NextPage).Length() > 0
	}

	return out, nil
}

func (s *Source) FetchMangaDetails(ctx context.Context, mangaURL string) (providers.Manga, error) {
	doc, _, err := s.fetchDOM(ctx, mangaURL)
	if err != nil {
		return providers.Manga{}, err
	}

	sel := s.cfg.Selectors
	m := providers.Manga{
		URL:         mangaURL,
		Title:       text(doc.Find(orDefault(sel.DetailTitle, "h1")).First()),
		Author:      optionalText(doc.Selection, sel.DetailAuthor),
		Artist:      optionalText(doc.Selection, sel.DetailArtist),
		Description: optionalText(doc.Selection, sel.DetailDescription),
		Status:      s.vocab.Map(optionalText(doc.Selection, sel.DetailStatus)),
	}
	if sel.DetailGenre != "" {
		doc.Find(sel.DetailGenre).Each(func(_ int, g *goquery.Selection) {
			if t := text(g); t != "" {
				m.Genres = append(m.Genres, t)
			}
		})
	}
	if sel.DetailThumbnail != "" {
		m.ThumbnailURL = s.imageURL(doc.Find(sel.DetailThumbnail).First(), mangaURL)
	}

	return m, nil
}

func (s *Source) FetchChapterList(ctx context.Context, mangaURL string) ([]providers.Chapter, error) {
	doc, _, err := s.fetchDOM(ctx, mangaURL)
	if err != nil {
		return nil, err
	}

	var out []providers.Chapter
	if s.cfg.Selectors.Chapter != "" {
		out = scanChapterLinks(doc.Find(s.cfg.Selectors.Chapter), mangaURL, true)
	} else {
		out = scanChapterLinks(doc.Find("a[href]"), mangaURL, false)
	}
	s.log.Debugf("%s: %d chapters", mangaURL, len(out))

	return out, nil
}

func (s *Source) FetchPageList(ctx context.Context, chapterURL string) ([]providers.Page, error) {
	doc, body, err := s.fetchDOM(ctx, chapterURL)
	if err != nil {
		return nil, err
	}

	if s.cfg.Selectors.Page != "" {
		pages := s.selectedPages(doc, chapterURL)
		if len(pages) == 0 {
			return nil, fmt.Errorf("%s: no elements match %q", chapterURL, s.cfg.Selectors.Page)
		}
		return pages, nil
	}

	col := newImageCollector(s.allowed, s.log)
	s.log.Debugf("markup: +%d candidates", col.scanDocument(doc.Selection, chapterURL))
	scanEmbeddedState(body, chapterURL, col)
	col.scanText(body)

	if s.probeJS {
		s.probeScripts(ctx, chapterURL, doc, col)
	}

	found := col.Finalize()
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: no usable images found", chapterURL)
	}

	pages := make([]providers.Page, len(found))
	for i, cand := range found {
		ref := cand.url
		if cand.el != nil {
			ref = s.decorate(cand.el, ref)
		}
		pages[i] = providers.Page{Index: i, ImageURL: ref}
	}

	return pages, nil
}

// imageURL reads the configured attribute, then the usual lazy-load ones.
func (s *Source) imageURL(sel *goquery.Selection, base string) string {
	for _, attr := range []string{s.cfg.Selectors.PageAttr, "data-src", "data-lazy-src", "data-original", "src"} {
		if attr == "" {
			continue
		}
		if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" {
			return resolve(base, v)
		}
	}
	return ""
}

// within narrows item to selector, or returns item itself for "".
func within(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return item
	}
	return item.Find(selector).First()
}

func optionalText(root *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return text(root.Find(selector).First())
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
