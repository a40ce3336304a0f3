package bookapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/config"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/resolve"
	"github.com/brogergvhs/mangapipe/internal/transform"
)

func fixtureAPI(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	write := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}
	}

	mux.HandleFunc("/api/titles", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("q") == "moon":
			_, _ = w.Write([]byte(`{"titles":[{"id":"7","title":"Moon"}]}`))
		case q.Get("sort") == "popular" && q.Get("page") == "1":
			_, _ = w.Write([]byte(`{"titles":[{"id":"7","title":"Moon","status":"Serializing"},{"title":"no id"}],"has_next":true}`))
		default:
			_, _ = w.Write([]byte(`{"titles":[]}`))
		}
	})
	mux.HandleFunc("/api/titles/7", write(`{"id":"7","title":"Moon","author":"Ann","genres":["SF"],"status":"Fin"}`))
	mux.HandleFunc("/api/titles/7/chapters", write(`{"chapters":[{"id":"c3","number":"2"},{"id":"c2","number":"1.5","title":"Extra"},{"id":"c1","number":"1"}]}`))

	mux.HandleFunc("/api/token", write(`{"token":"t"}`))
	mux.HandleFunc("/api/content", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cid") != "c1" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"content_url":"` + srv.URL + `/books/c1/"}`))
	})
	mux.HandleFunc("/books/c1/preprocess.json", write(`{"obfuscation_key":33}`))
	mux.HandleFunc("/books/c1/META-INF/container.xml", write(`<container><rootfiles><rootfile full-path="book.opf"/></rootfiles></container>`))
	mux.HandleFunc("/books/c1/book.opf", write(`<package><manifest>
		<item href="img/b.jpg" media-type="image/jpeg"/>
		<item href="img/a.jpg" media-type="image/jpeg"/>
	</manifest></package>`))

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newTestSource(t *testing.T, srv *httptest.Server) *Source {
	t.Helper()

	s, err := New(config.SourceConfig{
		Name:    "Books",
		Kind:    config.KindAPI,
		BaseURL: "https://books.example",
		API:     srv.URL + "/api",
		Status:  map[string]string{"fin": "completed"},
	}, srv.Client(), Options{ObfuscationLimit: 1024})
	require.NoError(t, err)

	return s
}

func TestListings(t *testing.T) {
	s := newTestSource(t, fixtureAPI(t))

	popular, err := s.FetchPopular(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, popular.Mangas, 1)
	assert.True(t, popular.HasNext)
	assert.Equal(t, "https://books.example/titles/7", popular.Mangas[0].URL)
	assert.Equal(t, providers.StatusOngoing, popular.Mangas[0].Status)

	found, err := s.FetchSearch(context.Background(), "moon", 1)
	require.NoError(t, err)
	require.Len(t, found.Mangas, 1)

	latest, err := s.FetchLatest(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, latest.Mangas)
	assert.False(t, latest.HasNext)
}

func TestDetailsAndChapters(t *testing.T) {
	s := newTestSource(t, fixtureAPI(t))

	m, err := s.FetchMangaDetails(context.Background(), "https://books.example/titles/7")
	require.NoError(t, err)
	assert.Equal(t, "Ann", m.Author)
	assert.Equal(t, providers.StatusCompleted, m.Status)

	chs, err := s.FetchChapterList(context.Background(), "https://books.example/titles/7/")
	require.NoError(t, err)
	require.Len(t, chs, 3)

	assert.Equal(t, "1", chs[0].Label)
	assert.Equal(t, "1.5", chs[1].Label)
	assert.Equal(t, "Extra", chs[1].Title)
	assert.Equal(t, 5, chs[1].SuffixNum)
	assert.Equal(t, "Chapter 2", chs[2].Title)
	assert.Equal(t, "https://books.example/titles/7/chapters/c1", chs[0].URL)
}

func TestFetchPageListResolves(t *testing.T) {
	srv := fixtureAPI(t)
	s := newTestSource(t, srv)

	pages, err := s.FetchPageList(context.Background(), "https://books.example/titles/7/chapters/c1")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	u, err := url.Parse(pages[0].ImageURL)
	require.NoError(t, err)
	assert.Equal(t, "/books/c1/img/a.jpg", u.Path)

	p, err := carrier.Obfuscation(u, 0)
	require.NoError(t, err)
	assert.Equal(t, transform.ObfuscationParams{Key: 33, Limit: 1024}, p)
}

func TestFetchPageListReportsStep(t *testing.T) {
	s := newTestSource(t, fixtureAPI(t))

	_, err := s.FetchPageList(context.Background(), "https://books.example/titles/7/chapters/c9")

	var se *resolve.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, resolve.StepContent, se.Step)
}

func TestMatchesAndValidation(t *testing.T) {
	s := newTestSource(t, fixtureAPI(t))
	assert.True(t, s.Matches("https://books.example/titles/7"))
	assert.False(t, s.Matches("https://elsewhere.example/titles/7"))

	_, err := New(config.SourceConfig{Name: "x", API: "::"}, nil, Options{})
	assert.Error(t, err)

	_, err = New(config.SourceConfig{Name: "x", API: "https://a.example", Status: map[string]string{"x": "nope"}}, nil, Options{})
	assert.Error(t, err)
}
