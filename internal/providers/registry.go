package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownSource = errors.New("unknown source")

// URLMatcher is implemented by sources that can claim a URL.
type URLMatcher interface {
	Matches(rawURL string) bool
}

type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(s.Name())
	if _, dup := r.sources[key]; dup {
		return fmt.Errorf("source %q registered twice", s.Name())
	}
	r.sources[key] = s

	return nil
}

func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	return s, nil
}

// ForURL returns the first source, by name, claiming rawURL.
func (r *Registry) ForURL(rawURL string) (Source, bool) {
	for _, name := range r.Names() {
		s, _ := r.Get(name)
		if m, ok := s.(URLMatcher); ok && m.Matches(rawURL) {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	sort.Strings(names)

	return names
}
