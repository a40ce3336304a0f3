package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/carrier"
	"github.com/brogergvhs/mangapipe/internal/config"
	"github.com/brogergvhs/mangapipe/internal/providers"
	"github.com/brogergvhs/mangapipe/internal/providers/bookapi"
	"github.com/brogergvhs/mangapipe/internal/providers/generic"
	"github.com/brogergvhs/mangapipe/internal/ui"
	"github.com/brogergvhs/mangapipe/internal/util"
)

// session is what every command needs once the config is resolved: one
// pipeline client and the sources built on top of it.
type session struct {
	cfg      *config.Config
	used     string
	log      *ui.Logger
	client   *http.Client
	registry *providers.Registry
}

func baseOptions() config.Options {
	return config.Options{
		IgnoreConfig:  flagIgnoreConfig,
		Debug:         flagDebug,
		DefaultSource: flagSource,
		Cookie:        flagCookie,
		CookieFile:    flagCookieFile,
		UserAgent:     flagUserAgent,
		Cloudflare:    flagCloudflare,
		RateLimit:     flagRateLimit,
	}
}

func openSession(opts config.Options) (*session, error) {
	cfg, used, err := config.LoadMerged(opts)
	if err != nil {
		return nil, err
	}

	logSvc := ui.NewLogger(cfg.Debug)

	cacheOpts := cache.Options{
		Size:        cfg.Cache.Size,
		TTL:         cfg.Cache.TTL,
		MaxAttempts: cfg.Cache.MaxAttempts,
	}

	client, err := util.NewHTTPClient(util.HTTPClientOptions{
		Timeout:          cfg.Timeout,
		UserAgent:        util.PickUserAgent(cfg.UserAgent),
		Cookie:           cfg.Cookie,
		CookieFile:       cfg.CookieFile,
		Cloudflare:       cfg.Cloudflare,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		ObfuscationLimit: cfg.Pipeline.ObfuscationLimit,
		Faces:            cache.New[string, carrier.Face](cacheOpts),
		DebugLogger:      logSvc,
	})
	if err != nil {
		return nil, err
	}

	contents := cache.New[string, string](cacheOpts)
	registry := providers.NewRegistry()

	for _, sc := range cfg.Sources {
		var src providers.Source

		switch sc.Kind {
		case config.KindAPI:
			src, err = bookapi.New(sc, client, bookapi.Options{
				Contents:         contents,
				ObfuscationLimit: cfg.Pipeline.ObfuscationLimit,
				Logger:           logSvc.WithField("source", sc.Name),
			})
		default:
			src, err = generic.New(sc, client, generic.Options{
				AllowExt:     cfg.AllowExt,
				ProbeScripts: true,
				Logger:       logSvc.WithField("source", sc.Name),
			})
		}
		if err != nil {
			return nil, err
		}

		if err := registry.Register(src); err != nil {
			return nil, err
		}
	}

	logSvc.Debugf("config: %s", strings.TrimSpace(used))
	logSvc.Debugf("sources: %s", strings.Join(registry.Names(), ", "))

	return &session{
		cfg:      cfg,
		used:     used,
		log:      logSvc,
		client:   client,
		registry: registry,
	}, nil
}

// source picks the connector for a command: --source first, then the
// source claiming rawURL, then default_source, then the only one configured.
func (s *session) source(rawURL string) (providers.Source, error) {
	if flagSource != "" {
		return s.registry.Get(flagSource)
	}

	if rawURL != "" {
		if src, ok := s.registry.ForURL(rawURL); ok {
			return src, nil
		}
	}

	if s.cfg.DefaultSource != "" {
		return s.registry.Get(s.cfg.DefaultSource)
	}

	names := s.registry.Names()
	switch len(names) {
	case 0:
		return nil, fmt.Errorf("no sources configured, add a `sources` section to the config")
	case 1:
		return s.registry.Get(names[0])
	}

	return nil, fmt.Errorf("several sources configured, pick one with --source (%s)", strings.Join(names, ", "))
}

func refererOf(src providers.Source) string {
	if r, ok := src.(interface{ Referer() string }); ok {
		return r.Referer()
	}
	return ""
}
