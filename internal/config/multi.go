package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNoConfig = errors.New("no config selected")

const DefaultLabel = "Default"

// Store manages labelled config profiles under Root:
//
//	<root>/configs/<label>.yaml
//	<root>/current_config
type Store struct {
	Root string
}

func defaultStore() Store { return Store{Root: ConfigRoot()} }

// DefaultStore returns the store under the user's config directory.
func DefaultStore() Store { return defaultStore() }

func ConfigRoot() string {
	if dir := os.Getenv("MANGAPIPE_CONFIG_HOME"); dir != "" {
		return dir
	}

	// Windows
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, "mangapipe")
	}

	// Linux/macOS XDG
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mangapipe")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mangapipe")
}

func (s Store) ConfigsDir() string {
	return filepath.Join(s.Root, "configs")
}

func (s Store) CurrentLabelFile() string {
	return filepath.Join(s.Root, "current_config")
}

func (s Store) path(label string) string {
	return filepath.Join(s.ConfigsDir(), label+".yaml")
}

// Path returns the file of an existing profile.
func (s Store) Path(label string) (string, error) {
	path := s.path(label)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config %q does not exist", label)
	}
	return path, nil
}

func (s Store) ensureDirs() error {
	return os.MkdirAll(s.ConfigsDir(), 0755)
}

func (s Store) setCurrent(label string) error {
	return os.WriteFile(s.CurrentLabelFile(), []byte(label), 0644)
}

func (s Store) CurrentLabel() (string, error) {
	if err := s.ensureDirs(); err != nil {
		return "", err
	}

	b, err := os.ReadFile(s.CurrentLabelFile())
	if os.IsNotExist(err) {
		return "", ErrNoConfig
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}

func (s Store) ActiveConfigPath() (string, error) {
	label, err := s.CurrentLabel()
	if err != nil || label == "" {
		return "", ErrNoConfig
	}

	return s.path(label), nil
}

type ConfigInfo struct {
	Label  string
	Path   string
	Active bool
}

func (s Store) ListConfigs() ([]ConfigInfo, error) {
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.ConfigsDir())
	if err != nil {
		return nil, err
	}

	activeLabel, _ := s.CurrentLabel()
	var out []ConfigInfo

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}

		label := strings.TrimSuffix(e.Name(), ".yaml")
		out = append(out, ConfigInfo{
			Label:  label,
			Path:   filepath.Join(s.ConfigsDir(), e.Name()),
			Active: label == activeLabel,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s Store) SwitchConfig(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("label cannot be empty")
	}
	if err := s.ensureDirs(); err != nil {
		return err
	}

	if _, err := os.Stat(s.path(label)); err != nil {
		return fmt.Errorf("config %q does not exist", label)
	}

	return s.setCurrent(label)
}

// AddConfig copies srcPath into the store after checking that it parses.
func (s Store) AddConfig(label, srcPath string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("label cannot be empty")
	}
	if err := s.ensureDirs(); err != nil {
		return err
	}

	dst := s.path(label)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("config %q already exists", label)
	}

	cfg, err := loadYAML(srcPath)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", srcPath, err)
	}
	normalizeDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", srcPath, err)
	}

	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, raw, 0644)
}

func (s Store) CreateEmptyConfig(label string) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "", errors.New("label cannot be empty")
	}
	if err := s.ensureDirs(); err != nil {
		return "", err
	}

	path := s.path(label)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config %q already exists", label)
	}

	if err := SaveYAML(DefaultConfig(), path); err != nil {
		return "", err
	}

	return path, nil
}

func (s Store) RenameConfig(oldLabel, newLabel string) error {
	if strings.TrimSpace(newLabel) == "" {
		return errors.New("new label cannot be empty")
	}
	if err := s.ensureDirs(); err != nil {
		return err
	}

	oldPath, newPath := s.path(oldLabel), s.path(newLabel)

	if _, err := os.Stat(oldPath); err != nil {
		return fmt.Errorf("config %q does not exist", oldLabel)
	}
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("config %q already exists", newLabel)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}

	if active, _ := s.CurrentLabel(); active == oldLabel {
		return s.setCurrent(newLabel)
	}

	return nil
}

// RemoveConfig deletes a profile. Removing the active one falls back to
// Default; the returned bool reports whether that happened.
func (s Store) RemoveConfig(label string) (bool, error) {
	if strings.TrimSpace(label) == "" {
		return false, errors.New("label cannot be empty")
	}
	if label == DefaultLabel {
		return false, errors.New("cannot remove the Default config")
	}
	if err := s.ensureDirs(); err != nil {
		return false, err
	}

	path := s.path(label)
	if _, err := os.Stat(path); err != nil {
		return false, fmt.Errorf("config %q does not exist", label)
	}

	fellBack := false
	if active, _ := s.CurrentLabel(); active == label {
		if err := s.SwitchConfig(DefaultLabel); err != nil {
			return false, fmt.Errorf("failed switching to Default: %w", err)
		}
		fellBack = true
	}

	return fellBack, os.Remove(path)
}

// InitDefaultConfig writes Default.yaml if missing and makes it active.
// It returns os.ErrExist alongside the path when the file was already there.
func (s Store) InitDefaultConfig() (string, error) {
	if err := s.ensureDirs(); err != nil {
		return "", err
	}

	defPath := s.path(DefaultLabel)

	if _, err := os.Stat(defPath); err == nil {
		_ = s.setCurrent(DefaultLabel)
		return defPath, os.ErrExist
	}

	if err := SaveYAML(DefaultConfig(), defPath); err != nil {
		return "", err
	}

	_ = s.setCurrent(DefaultLabel)
	return defPath, nil
}

// Load reads a single profile by label.
func (s Store) Load(label string) (*Config, error) {
	return loadYAML(s.path(label))
}

// Save writes cfg under label, replacing any existing profile.
func (s Store) Save(label string, cfg *Config) error {
	if err := s.ensureDirs(); err != nil {
		return err
	}
	return SaveYAML(cfg, s.path(label))
}
