package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/obfuscate"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/util"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n fake page body")

type countingProgress struct {
	updates atomic.Int32
	done    atomic.Bool
}

func (p *countingProgress) Update(int, int, int64) { p.updates.Add(1) }
func (p *countingProgress) MarkDone()              { p.done.Store(true) }

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/plain.webp", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://site.example/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFF....WEBP"))
	})
	mux.HandleFunc("/xor.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(obfuscate.XOR(append([]byte(nil), pngHeader...), 7, 0))
	})
	mux.HandleFunc("/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/locked.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(bytes.Repeat([]byte{1}, 32))
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pipelineClient(t *testing.T) *http.Client {
	t.Helper()
	c, err := util.NewHTTPClient(util.HTTPClientOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestDownloadRestoresAndNamesPages(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	xorRef, err := carrier.WithObfuscation(srv.URL+"/xor.bin", 7, 0)
	require.NoError(t, err)

	pages := []providers.Page{
		{Index: 0, ImageURL: srv.URL + "/plain.webp"},
		{Index: 1, ImageURL: xorRef},
	}

	dir := t.TempDir()
	ph := &countingProgress{}
	d := New(pipelineClient(t), Options{Referer: "https://site.example/", Workers: 2})

	files, n, err := d.Download(context.Background(), pages, dir, ph)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "page_001.webp"), files[0])
	assert.Equal(t, filepath.Join(dir, "page_002.png"), files[1])
	assert.Positive(t, n)
	assert.True(t, ph.done.Load())

	got, err := os.ReadFile(files[1])
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)
}

func TestDownloadBrokenPages(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	pages := []providers.Page{
		{Index: 0, ImageURL: srv.URL + "/plain.webp"},
		{Index: 1, ImageURL: srv.URL + "/missing.jpg"},
		{Index: 2, ImageURL: srv.URL + "/page.html"},
	}

	d := New(pipelineClient(t), Options{Referer: "https://site.example/", Attempts: 2, Backoff: time.Millisecond})
	files, _, err := d.Download(context.Background(), pages, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed 2/3 pages")
	assert.Contains(t, err.Error(), "unexpected MIME")
	assert.Len(t, files, 1)
	assert.Equal(t, int32(2), hits.Load())

	d = New(pipelineClient(t), Options{Referer: "https://site.example/", Attempts: 1, SkipBroken: true})
	files, _, err = d.Download(context.Background(), pages, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDownloadDoesNotRetryDecryptFailures(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	ref := carrier.WithCipher(srv.URL+"/locked.jpg", []byte("short"), bytes.Repeat([]byte{0}, 16))
	d := New(pipelineClient(t), Options{Attempts: 3, Backoff: time.Millisecond})

	_, _, err := d.Download(context.Background(), []providers.Page{{ImageURL: ref}}, t.TempDir(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(pipelineClient(t), Options{})
	_, _, err := d.Download(ctx, []providers.Page{{ImageURL: srv.URL + "/plain.webp"}}, t.TempDir(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchSingleImage(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)

	xorRef, err := carrier.WithObfuscation(srv.URL+"/xor.bin", 7, 0)
	require.NoError(t, err)

	base := filepath.Join(t.TempDir(), "out", "cover")
	file, err := New(pipelineClient(t), Options{}).Fetch(context.Background(), xorRef, base)
	require.NoError(t, err)
	assert.Equal(t, base+".png", file)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)
}
