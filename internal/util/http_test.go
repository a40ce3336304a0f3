package util

import (
	"context"
	"io"
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
)

func TestClientSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://site.example/", r.Header.Get("Referer"))
		assert.Equal(t, "a=1; b=2", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cookieFile := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(cookieFile, []byte("\n b=2 \nc=3\n"), 0644))

	client, err := NewHTTPClient(HTTPClientOptions{
		Timeout:    5 * time.Second,
		UserAgent:  "test-agent",
		Referer:    "https://site.example/",
		Cookie:     "a=1",
		CookieFile: cookieFile,
	})
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientRunsPipeline(t *testing.T) {
	plain := []byte("image bytes that were obfuscated")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write(obfuscate.XOR(append([]byte(nil), plain...), 0x5a, 0))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	ref, err := carrier.WithObfuscation(srv.URL+"/p.jpg", 0x5a, 0)
	require.NoError(t, err)

	resp, err := client.Get(ref)
	require.NoError(t, err)
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, plain, got[:len(plain)])
}

func TestRedirectKeepsTransform(t *testing.T) {
	plain := []byte("hello world")

	mux := http.NewServeMux()
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id=3", r.URL.RawQuery)
		http.Redirect(w, r, "/cdn/img.jpg?sig=abc", http.StatusFound)
	})
	mux.HandleFunc("/cdn/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sig=abc", r.URL.RawQuery)
		assert.NotContains(t, r.Header.Get("Referer"), carrier.XORKey)
		_, _ = w.Write(obfuscate.XOR(append([]byte(nil), plain...), 7, 0))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	resp, err := client.Get(srv.URL + "/img?id=3&xor_key=7")
	require.NoError(t, err)
	defer resp.Body.Close()

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	assert.Equal(t, "/cdn/img.jpg", resp.Request.URL.Path)
}

func TestRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = client.Get(srv.URL + "/loop?xor_key=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 10 redirects")
}

func TestRateLimitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientOptions{RateLimit: 0.01, RateBurst: 1})
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDoWithRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := DoWithRetry(srv.Client(), req, 3, time.Millisecond)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, int32(3), hits.Load())

	hits.Store(-10)
	_, err = DoWithRetry(srv.Client(), req, 2, time.Millisecond)
	assert.ErrorContains(t, err, "HTTP 502 after 2 attempts")
}

func TestPickUserAgent(t *testing.T) {
	assert.Equal(t, "custom", PickUserAgent("custom"))
	assert.Contains(t, PickUserAgent(""), "Mozilla/5.0")
}
