// Package downloader saves chapter pages to disk. Requests go through the
// pipeline client, so files hold the restored images.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/decrypt"
	"github.com/brogergvhs/mangapipe/internal/providers"
)

// Progress receives page and byte counts for one chapter.
type Progress interface {
	Update(done, total int, bytes int64)
	MarkDone()
}

type nopProgress struct{}

func (nopProgress) Update(int, int, int64) {}
func (nopProgress) MarkDone()              {}

type Options struct {
	SkipBroken bool
	Referer    string
	Workers    int
	Attempts   int
	Backoff    time.Duration
	// Timeout bounds a single image request.
	Timeout time.Duration
}

type Downloader struct {
	client *http.Client
	opts   Options
}

func New(c *http.Client, opts Options) *Downloader {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Downloader{client: c, opts: opts}
}

type chapterState struct {
	mu          sync.Mutex
	doneImages  int
	totalImages int
	doneBytes   int64
	files       map[int]string
	errs        []error
}

func (cs *chapterState) finish(ph Progress, i int, file string, err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err != nil {
		cs.errs = append(cs.errs, fmt.Errorf("page %d: %w", i+1, err))
	} else {
		cs.files[i] = file
	}
	cs.doneImages++
	ph.Update(cs.doneImages, cs.totalImages, cs.doneBytes)
}

// Download fetches pages into folder as page_NNN.<ext>. Files are returned
// in page order.
func (d *Downloader) Download(ctx context.Context, pages []providers.Page, folder string, ph Progress) ([]string, int64, error) {
	if ph == nil {
		ph = nopProgress{}
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, 0, err
	}

	cs := &chapterState{totalImages: len(pages), files: make(map[int]string, len(pages))}
	ph.Update(0, len(pages), 0)

	err := runPool(ctx, d.opts.Workers, len(pages), func(i int) {
		var last int64
		progress := func(done int64) {
			delta := done - last
			if delta <= 0 {
				return
			}
			last = done

			cs.mu.Lock()
			cs.doneBytes += delta
			ph.Update(cs.doneImages, cs.totalImages, cs.doneBytes)
			cs.mu.Unlock()
		}

		base := filepath.Join(folder, fmt.Sprintf("page_%03d", i+1))
		file, err := d.downloadWithRetry(ctx, pages[i].ImageURL, base, progress)
		cs.finish(ph, i, file, err)
	})
	ph.MarkDone()

	files := cs.ordered()
	if err != nil {
		return files, cs.doneBytes, err
	}

	if len(cs.errs) > 0 && !d.opts.SkipBroken {
		return files, cs.doneBytes, fmt.Errorf("failed %d/%d pages (use --skip-broken to continue): %w",
			len(cs.errs), len(pages), errors.Join(cs.errs...))
	}

	return files, cs.doneBytes, nil
}

// Fetch saves a single image to base plus the extension of its restored
// content and returns the file written.
func (d *Downloader) Fetch(ctx context.Context, ref, base string) (string, error) {
	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	return d.downloadWithRetry(ctx, ref, base, func(int64) {})
}

func (cs *chapterState) ordered() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	idx := make([]int, 0, len(cs.files))
	for i := range cs.files {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]string, len(idx))
	for n, i := range idx {
		out[n] = cs.files[i]
	}
	return out
}

// downloadWithRetry retries transport and status failures. Decryption
// failures are final.
func (d *Downloader) downloadWithRetry(ctx context.Context, ref, base string, progress func(done int64)) (string, error) {
	var err error
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		var file string
		file, err = d.download(ctx, ref, base, progress)
		if err == nil {
			return file, nil
		}

		var de *decrypt.Error
		if errors.As(err, &de) || attempt == d.opts.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * d.opts.Backoff):
		}
	}

	return "", err
}

func (d *Downloader) download(ctx context.Context, ref, base string, progress func(done int64)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", err
	}

	if d.opts.Referer != "" {
		req.Header.Set("Referer", d.opts.Referer)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	ext, err := extension(resp.Header.Get("Content-Type"), req.URL)
	if err != nil {
		return "", err
	}

	output := base + ext
	f, err := os.Create(output)
	if err != nil {
		return "", err
	}

	written, err := copyWithProgress(f, resp.Body, progress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(output)
		return "", err
	}

	if resp.ContentLength > 0 && written < resp.ContentLength {
		_ = os.Remove(output)
		return "", fmt.Errorf("short body: %d of %d bytes", written, resp.ContentLength)
	}

	return output, nil
}

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/avif": ".avif",
}

// extension prefers the response type, since the pipeline may re-encode,
// and falls back to the carrier-free URL path.
func extension(contentType string, u *url.URL) (string, error) {
	if contentType != "" {
		mt, _, _ := mime.ParseMediaType(contentType)
		if ext, ok := imageExt[mt]; ok {
			return ext, nil
		}
		if !strings.HasPrefix(mt, "image/") && mt != "application/octet-stream" {
			return "", fmt.Errorf("unexpected MIME: %s", contentType)
		}
	}

	ext := strings.ToLower(path.Ext(carrier.Strip(u).Path))
	for _, known := range imageExt {
		if ext == known || ext == ".jpeg" {
			return ext, nil
		}
	}

	return ".jpg", nil
}
