package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KindHTML = "html"
	KindAPI  = "api"
)

type Config struct {
	Output         string   `yaml:"output"`
	ImageWorkers   int      `yaml:"image_workers"`
	ChapterWorkers int      `yaml:"chapter_workers"`
	KeepFolders    bool     `yaml:"keep_folders"`
	Debug          bool     `yaml:"debug"`
	AllowExt       []string `yaml:"allow_ext"`
	SkipBroken     bool     `yaml:"skip_broken"`

	DefaultSource string `yaml:"default_source"`
	DefaultURL    string `yaml:"default_url"`
	DefaultRange  string `yaml:"default_range"`
	DefaultList   string `yaml:"default_list"`

	Cookie     string        `yaml:"cookie"`
	CookieFile string        `yaml:"cookie_file"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	Cloudflare bool          `yaml:"cloudflare"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst  int           `yaml:"rate_burst"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`

	Sources []SourceConfig `yaml:"sources"`
}

type PipelineConfig struct {
	ObfuscationLimit int `yaml:"obfuscation_limit"`
}

type CacheConfig struct {
	Size        int           `yaml:"size"`
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SourceConfig describes one site. Kind "html" sites are scraped with the
// selectors; kind "api" sites talk to a JSON API and resolve page lists
// through the multi-step chain.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	API     string `yaml:"api,omitempty"`
	Referer string `yaml:"referer,omitempty"`

	// Listing paths relative to BaseURL; {page} and {query} are substituted.
	PopularPath string `yaml:"popular_path,omitempty"`
	LatestPath  string `yaml:"latest_path,omitempty"`
	SearchPath  string `yaml:"search_path,omitempty"`

	Selectors Selectors `yaml:"selectors,omitempty"`

	// Status maps site wording to a canonical status name.
	Status map[string]string `yaml:"status,omitempty"`
}

type Selectors struct {
	MangaItem      string `yaml:"manga_item,omitempty"`
	MangaTitle     string `yaml:"manga_title,omitempty"`
	MangaURL       string `yaml:"manga_url,omitempty"`
	MangaThumbnail string `yaml:"manga_thumbnail,omitempty"`
	NextPage       string `yaml:"next_page,omitempty"`

	DetailTitle       string `yaml:"detail_title,omitempty"`
	DetailAuthor      string `yaml:"detail_author,omitempty"`
	DetailArtist      string `yaml:"detail_artist,omitempty"`
	DetailDescription string `yaml:"detail_description,omitempty"`
	DetailGenre       string `yaml:"detail_genre,omitempty"`
	DetailStatus      string `yaml:"detail_status,omitempty"`
	DetailThumbnail   string `yaml:"detail_thumbnail,omitempty"`

	Chapter string `yaml:"chapter,omitempty"`

	Page     string `yaml:"page,omitempty"`
	PageAttr string `yaml:"page_attr,omitempty"`

	// Attributes on page elements that carry transform parameters.
	XORKeyAttr    string `yaml:"xor_key_attr,omitempty"`
	ScrambleAttr  string `yaml:"scramble_attr,omitempty"`
	ScrambleGrid  string `yaml:"scramble_grid,omitempty"` // e.g. "4x4"
	CipherKeyAttr string `yaml:"cipher_key_attr,omitempty"`
	CipherIVAttr  string `yaml:"cipher_iv_attr,omitempty"`
	TilesAttr     string `yaml:"tiles_attr,omitempty"`
	CompanionAttr string `yaml:"companion_attr,omitempty"`
}

type Options struct {
	IgnoreConfig   bool
	Debug          bool
	Output         string
	ImageWorkers   int
	ChapterWorkers int
	KeepFolders    bool
	DefaultSource  string
	DefaultURL     string
	DefaultRange   string
	DefaultList    string
	Cookie         string
	CookieFile     string
	UserAgent      string
	SkipBroken     bool
	AllowExt       []string
	Cloudflare     bool
	RateLimit      float64
}

func DefaultConfig() *Config {
	return &Config{
		Output:         ".",
		ImageWorkers:   5,
		ChapterWorkers: 2,
		AllowExt:       []string{"jpg", "jpeg", "png", "webp"},
		Timeout:        30 * time.Second,
		RateBurst:      1,
		Pipeline: PipelineConfig{
			ObfuscationLimit: 1024,
		},
		Cache: CacheConfig{
			Size:        1000,
			TTL:         30 * time.Minute,
			MaxAttempts: 3,
		},
	}
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadMerged loads the active profile (or defaults) and applies CLI
// overrides on top.
func LoadMerged(opts Options) (*Config, string, error) {
	return defaultStore().LoadMerged(opts)
}

func (s Store) LoadMerged(opts Options) (*Config, string, error) {
	if opts.IgnoreConfig {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(ignored config)", cfg.Validate()
	}

	activePath, err := s.ActiveConfigPath()
	if errors.Is(err, ErrNoConfig) || activePath == "" {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(default config in memory)\nRun `mangapipe config init` to create an actual config\n", cfg.Validate()
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadYAML(activePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", activePath, err)
	}

	mergeConfig(cfg, opts)
	normalizeDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config %s: %w", activePath, err)
	}

	return cfg, activePath, nil
}

func mergeConfig(c *Config, o Options) {
	if o.Output != "" {
		c.Output = o.Output
	}
	if o.ImageWorkers != 0 {
		c.ImageWorkers = o.ImageWorkers
	}
	if o.ChapterWorkers != 0 {
		c.ChapterWorkers = o.ChapterWorkers
	}
	if o.KeepFolders {
		c.KeepFolders = true
	}
	if o.Debug {
		c.Debug = true
	}
	if o.DefaultSource != "" {
		c.DefaultSource = o.DefaultSource
	}
	if o.DefaultURL != "" {
		c.DefaultURL = o.DefaultURL
	}
	if o.DefaultRange != "" {
		c.DefaultRange = o.DefaultRange
	}
	if o.DefaultList != "" {
		c.DefaultList = o.DefaultList
	}
	if o.Cookie != "" {
		c.Cookie = o.Cookie
	}
	if o.CookieFile != "" {
		c.CookieFile = o.CookieFile
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.SkipBroken {
		c.SkipBroken = true
	}
	if len(o.AllowExt) > 0 {
		c.AllowExt = o.AllowExt
	}
	if o.Cloudflare {
		c.Cloudflare = true
	}
	if o.RateLimit != 0 {
		c.RateLimit = o.RateLimit
	}
}

func normalizeDefaults(c *Config) {
	def := DefaultConfig()

	if c.Output == "" {
		c.Output = def.Output
	}
	if c.ImageWorkers <= 0 {
		c.ImageWorkers = def.ImageWorkers
	}
	if c.ChapterWorkers <= 0 {
		c.ChapterWorkers = def.ChapterWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	if c.Pipeline.ObfuscationLimit == 0 {
		c.Pipeline.ObfuscationLimit = def.Pipeline.ObfuscationLimit
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = def.Cache.Size
	}
	if c.Cache.MaxAttempts <= 0 {
		c.Cache.MaxAttempts = def.Cache.MaxAttempts
	}
	for i := range c.Sources {
		c.Sources[i].Kind = strings.ToLower(strings.TrimSpace(c.Sources[i].Kind))
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = KindHTML
		}
	}
}

// Validate checks source definitions.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, s := range c.Sources {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return errors.New("source without a name")
		}
		if seen[name] {
			return fmt.Errorf("source %q defined twice", s.Name)
		}
		seen[name] = true

		switch s.Kind {
		case KindHTML:
			if s.BaseURL == "" {
				return fmt.Errorf("source %q: base_url is required", s.Name)
			}
		case KindAPI:
			if s.API == "" {
				return fmt.Errorf("source %q: api is required", s.Name)
			}
		default:
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
	}

	if c.DefaultSource != "" && !seen[strings.ToLower(c.DefaultSource)] {
		return fmt.Errorf("default_source %q is not defined", c.DefaultSource)
	}

	return nil
}

// Source returns the source called name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SourceConfig{}, false
}

func (c *Config) Print() {
	if c.Output != "" {
		fmt.Printf(" -output: %s\n", c.Output)
	}
	fmt.Printf(" -image_workers: %d\n", c.ImageWorkers)
	fmt.Printf(" -chapter_workers: %d\n", c.ChapterWorkers)
	if c.KeepFolders {
		fmt.Printf(" -keep_folders: %t\n", c.KeepFolders)
	}
	if c.Debug {
		fmt.Printf(" -debug: %t\n", c.Debug)
	}
	if c.DefaultSource != "" {
		fmt.Printf(" -source: %s\n", c.DefaultSource)
	}
	if c.DefaultURL != "" {
		fmt.Printf(" -url: %s\n", c.DefaultURL)
	}
	if c.DefaultRange != "" {
		fmt.Printf(" -range: %s\n", c.DefaultRange)
	}
	if c.DefaultList != "" {
		fmt.Printf(" -list: %s\n", c.DefaultList)
	}
	if c.CookieFile != "" {
		fmt.Printf(" -cookie_file: %s\n", c.CookieFile)
	}
	if c.SkipBroken {
		fmt.Printf(" -skip_broken: %t\n", c.SkipBroken)
	}
	if len(c.AllowExt) > 0 {
		fmt.Printf(" -allow_ext: %s\n", strings.Join(c.AllowExt, ", "))
	}
	fmt.Printf(" -timeout: %s\n", c.Timeout)
	if c.Cloudflare {
		fmt.Printf(" -cloudflare: %t\n", c.Cloudflare)
	}
	if c.RateLimit > 0 {
		fmt.Printf(" -rate_limit: %g/s (burst %d)\n", c.RateLimit, c.RateBurst)
	}
	fmt.Printf(" -pipeline.obfuscation_limit: %d\n", c.Pipeline.ObfuscationLimit)
	fmt.Printf(" -cache: size=%d ttl=%s max_attempts=%d\n", c.Cache.Size, c.Cache.TTL, c.Cache.MaxAttempts)
	for _, s := range c.Sources {
		fmt.Printf(" -source %s (%s): %s%s\n", s.Name, s.Kind, s.BaseURL, s.API)
	}
}
