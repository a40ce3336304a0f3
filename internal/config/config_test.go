package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMergedWithoutProfileUsesDefaults(t *testing.T) {
	s := Store{Root: t.TempDir()}

	cfg, used, err := s.LoadMerged(Options{ImageWorkers: 9, RateLimit: 2.5})
	require.NoError(t, err)
	assert.Contains(t, used, "default config in memory")

	assert.Equal(t, 9, cfg.ImageWorkers)
	assert.Equal(t, 2, cfg.ChapterWorkers)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 1, cfg.RateBurst)
	assert.Equal(t, 1024, cfg.Pipeline.ObfuscationLimit)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadMergedReadsActiveProfile(t *testing.T) {
	s := Store{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(s.ConfigsDir(), 0755))

	raw := `
output: /tmp/out
pipeline:
  obfuscation_limit: -1
cache:
  ttl: 5m
default_source: Demo
sources:
  - name: Demo
    base_url: https://demo.example
    selectors:
      page: "div.reader img"
      xor_key_attr: data-key
  - name: Books
    kind: API
    api: https://books.example/api
    status:
      en curso: ongoing
`
	require.NoError(t, os.WriteFile(filepath.Join(s.ConfigsDir(), "work.yaml"), []byte(raw), 0644))
	require.NoError(t, s.SwitchConfig("work"))

	cfg, used, err := s.LoadMerged(Options{Output: "/override"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.ConfigsDir(), "work.yaml"), used)

	assert.Equal(t, "/override", cfg.Output)
	assert.Equal(t, -1, cfg.Pipeline.ObfuscationLimit)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.Size)

	demo, ok := cfg.Source("demo")
	require.True(t, ok)
	assert.Equal(t, KindHTML, demo.Kind)
	assert.Equal(t, "data-key", demo.Selectors.XORKeyAttr)

	books, ok := cfg.Source("Books")
	require.True(t, ok)
	assert.Equal(t, KindAPI, books.Kind)
	assert.Equal(t, "ongoing", books.Status["en curso"])
}

func TestValidateRejectsBadSources(t *testing.T) {
	for name, cfg := range map[string]*Config{
		"unnamed":         {Sources: []SourceConfig{{Kind: KindHTML, BaseURL: "https://a"}}},
		"duplicate":       {Sources: []SourceConfig{{Name: "a", Kind: KindHTML, BaseURL: "https://a"}, {Name: "A", Kind: KindHTML, BaseURL: "https://b"}}},
		"html no base":    {Sources: []SourceConfig{{Name: "a", Kind: KindHTML}}},
		"api no endpoint": {Sources: []SourceConfig{{Name: "a", Kind: KindAPI}}},
		"unknown kind":    {Sources: []SourceConfig{{Name: "a", Kind: "ftp"}}},
		"missing default": {DefaultSource: "nope"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStoreProfiles(t *testing.T) {
	s := Store{Root: t.TempDir()}

	path, err := s.InitDefaultConfig()
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = s.InitDefaultConfig()
	assert.ErrorIs(t, err, os.ErrExist)

	_, err = s.CreateEmptyConfig("alt")
	require.NoError(t, err)
	_, err = s.CreateEmptyConfig("alt")
	assert.Error(t, err)

	require.NoError(t, s.SwitchConfig("alt"))
	require.NoError(t, s.RenameConfig("alt", "second"))

	label, err := s.CurrentLabel()
	require.NoError(t, err)
	assert.Equal(t, "second", label)

	infos, err := s.ListConfigs()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, DefaultLabel, infos[0].Label)
	assert.True(t, infos[1].Active)

	fellBack, err := s.RemoveConfig("second")
	require.NoError(t, err)
	assert.True(t, fellBack)

	label, err = s.CurrentLabel()
	require.NoError(t, err)
	assert.Equal(t, DefaultLabel, label)

	_, err = s.RemoveConfig(DefaultLabel)
	assert.Error(t, err)
}

func TestAddConfigRejectsInvalidFile(t *testing.T) {
	s := Store{Root: t.TempDir()}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sources:\n  - name: x\n    kind: api\n"), 0644))
	assert.Error(t, s.AddConfig("bad", bad))

	good := filepath.Join(t.TempDir(), "good.yaml")
	require.NoError(t, SaveYAML(DefaultConfig(), good))
	require.NoError(t, s.AddConfig("good", good))

	cfg, err := s.Load("good")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().AllowExt, cfg.AllowExt)
}

func TestConfigRootHonoursOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MANGAPIPE_CONFIG_HOME", dir)
	assert.Equal(t, dir, ConfigRoot())

	t.Setenv("MANGAPIPE_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "mangapipe"), ConfigRoot())
}
