// Package bookapi implements providers.Source for sites that publish their
// catalogue as a JSON API and serve chapters as packaged books. Page lists
// come from the resolve chain, which attaches obfuscation carriers.
package bookapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/config"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/resolve"
)

type Options struct {
	// Contents is shared between sources so content URLs survive across
	// chapters of the same run.
	Contents         *cache.Memo[string, string]
	ObfuscationLimit int
	Logger           interface {
		Debugf(string, ...any)
	}
}

type Source struct {
	name   string
	api    string
	site   string
	hosts  []string
	client *http.Client
	chain  *resolve.Chain
	vocab  providers.StatusVocabulary
}

var (
	_ providers.Source     = (*Source)(nil)
	_ providers.Detailer   = (*Source)(nil)
	_ providers.URLMatcher = (*Source)(nil)
)

func New(cfg config.SourceConfig, client *http.Client, opts Options) (*Source, error) {
	api, err := url.Parse(cfg.API)
	if err != nil || api.Host == "" {
		return nil, fmt.Errorf("source %s: invalid api %q", cfg.Name, cfg.API)
	}

	vocab, err := providers.DefaultVocabulary.Extend(cfg.Status)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	s := &Source{
		name:   cfg.Name,
		api:    strings.TrimRight(cfg.API, "/"),
		site:   strings.TrimRight(cfg.BaseURL, "/"),
		hosts:  []string{strings.ToLower(api.Hostname())},
		client: client,
		vocab:  vocab,
		chain: resolve.New(resolve.Options{
			API:              cfg.API,
			Client:           client,
			Contents:         opts.Contents,
			ObfuscationLimit: opts.ObfuscationLimit,
			Logger:           opts.Logger,
		}),
	}
	if s.site == "" {
		s.site = s.api
	}
	if site, err := url.Parse(s.site); err == nil && site.Host != "" {
		s.hosts = append(s.hosts, strings.ToLower(site.Hostname()))
	}

	return s, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) Matches(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	for _, host := range s.hosts {
		if h == host {
			return true
		}
	}
	return false
}

type title struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Artist      string   `json:"artist"`
	Description string   `json:"description"`
	Genres      []string `json:"genres"`
	Status      string   `json:"status"`
	Cover       string   `json:"cover"`
}

type titlesResponse struct {
	Titles  []title `json:"titles"`
	HasNext bool    `json:"has_next"`
}

type chapter struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Title  string `json:"title"`
}

type chaptersResponse struct {
	Chapters []chapter `json:"chapters"`
}

func (s *Source) titleURL(id string) string {
	return s.site + "/titles/" + url.PathEscape(id)
}

func (s *Source) manga(t title) providers.Manga {
	return providers.Manga{
		URL:          s.titleURL(t.ID),
		Title:        t.Title,
		Author:       t.Author,
		Artist:       t.Artist,
		Description:  t.Description,
		Genres:       t.Genres,
		Status:       s.vocab.Map(t.Status),
		ThumbnailURL: t.Cover,
	}
}

func (s *Source) FetchPopular(ctx context.Context, page int) (providers.MangasPage, error) {
	return s.list(ctx, url.Values{"sort": {"popular"}}, page)
}

func (s *Source) FetchLatest(ctx context.Context, page int) (providers.MangasPage, error) {
	return s.list(ctx, url.Values{"sort": {"latest"}}, page)
}

func (s *Source) FetchSearch(ctx context.Context, query string, page int) (providers.MangasPage, error) {
	return s.list(ctx, url.Values{"q": {query}}, page)
}

func (s *Source) list(ctx context.Context, q url.Values, page int) (providers.MangasPage, error) {
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))

	var resp titlesResponse
	if err := s.getJSON(ctx, s.api+"/titles?"+q.Encode(), &resp); err != nil {
		return providers.MangasPage{}, err
	}

	out := providers.MangasPage{HasNext: resp.HasNext}
	for _, t := range resp.Titles {
		if t.ID == "" {
			continue
		}
		out.Mangas = append(out.Mangas, s.manga(t))
	}

	return out, nil
}

func (s *Source) FetchMangaDetails(ctx context.Context, mangaURL string) (providers.Manga, error) {
	id, err := lastSegment(mangaURL)
	if err != nil {
		return providers.Manga{}, err
	}

	var t title
	if err := s.getJSON(ctx, s.api+"/titles/"+url.PathEscape(id), &t); err != nil {
		return providers.Manga{}, err
	}
	if t.ID == "" {
		t.ID = id
	}

	return s.manga(t), nil
}

func (s *Source) FetchChapterList(ctx context.Context, mangaURL string) ([]providers.Chapter, error) {
	id, err := lastSegment(mangaURL)
	if err != nil {
		return nil, err
	}

	var resp chaptersResponse
	if err := s.getJSON(ctx, s.api+"/titles/"+url.PathEscape(id)+"/chapters", &resp); err != nil {
		return nil, err
	}

	out := make([]providers.Chapter, 0, len(resp.Chapters))
	for _, c := range resp.Chapters {
		if c.ID == "" {
			continue
		}
		out = append(out, chapterFrom(s.titleURL(id)+"/chapters/"+url.PathEscape(c.ID), c))
	}
	providers.SortChapters(out)

	return out, nil
}

func chapterFrom(u string, c chapter) providers.Chapter {
	ch := providers.Chapter{URL: u, Title: c.Title, Label: c.Number}

	whole, frac, ok := strings.Cut(strings.TrimSpace(c.Number), ".")
	ch.NumMain, _ = strconv.Atoi(whole)
	if ok {
		ch.SuffixType = "."
		ch.SuffixNum, _ = strconv.Atoi(frac)
	}
	if ch.Label == "" {
		ch.Label = c.ID
	}
	if ch.Title == "" {
		ch.Title = "Chapter " + ch.Label
	}

	return ch
}

// FetchPageList treats the last path segment of chapterURL as the content id.
func (s *Source) FetchPageList(ctx context.Context, chapterURL string) ([]providers.Page, error) {
	id, err := lastSegment(chapterURL)
	if err != nil {
		return nil, err
	}

	resolved, err := s.chain.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	pages := make([]providers.Page, len(resolved))
	for i, p := range resolved {
		pages[i] = providers.Page{Index: p.Index, ImageURL: p.Reference}
	}

	return pages, nil
}

func lastSegment(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "" || seg == "." || seg == "/" {
		return "", fmt.Errorf("no id in %q", rawURL)
	}

	return url.PathUnescape(seg)
}

func (s *Source) getJSON(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: HTTP %d", target, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}

	return nil
}
