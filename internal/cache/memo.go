// Package cache provides the memoization cache shared by connectors and the
// response pipeline. Entries are write-once per key: the first successful
// load wins and later loads of the same key may race harmlessly.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectdiscovery/gcache"
)

const (
	DefaultSize        = 1000
	DefaultTTL         = 30 * time.Minute
	DefaultMaxAttempts = 3
	DefaultBackoff     = 250 * time.Millisecond
)

type Options struct {
	Size        int
	TTL         time.Duration // 0 keeps entries until evicted
	MaxAttempts int
	Backoff     time.Duration // multiplied by the attempt number
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	return o
}

// Memo is an LRU cache with optional expiry and a retrying loader.
type Memo[K comparable, V any] struct {
	entries gcache.Cache[K, V]
	opts    Options
}

func New[K comparable, V any](opts Options) *Memo[K, V] {
	opts = opts.withDefaults()

	b := gcache.New[K, V](opts.Size).LRU()
	if opts.TTL > 0 {
		b = b.Expiration(opts.TTL)
	}

	return &Memo[K, V]{entries: b.Build(), opts: opts}
}

func (m *Memo[K, V]) Get(key K) (V, bool) {
	v, err := m.entries.GetIFPresent(key)
	if err != nil {
		var zero V
		return zero, false
	}
	return v, true
}

func (m *Memo[K, V]) Set(key K, v V) {
	_ = m.entries.Set(key, v)
}

func (m *Memo[K, V]) Len() int {
	return m.entries.Len(true)
}

func (m *Memo[K, V]) Purge() {
	m.entries.Purge()
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a loader error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// GetOrLoad returns the cached value for key or calls load, retrying up to
// MaxAttempts times. Failed loads are never cached.
func (m *Memo[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	var (
		zero    V
		lastErr error
	)

	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		if attempt > 1 && m.opts.Backoff > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(m.opts.Backoff * time.Duration(attempt-1)):
			}
		}

		v, err := load(ctx)
		if err == nil {
			m.Set(key, v)
			return v, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctx.Err() != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", m.opts.MaxAttempts, lastErr)
}
