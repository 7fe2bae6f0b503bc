package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up at the project root.
const FileName = "beam.yaml"

// Config represents the optional beam.yaml configuration.
type Config struct {
	Precompile PrecompileConfig `yaml:"precompile"`
	// Settings points at the application settings file, relative to the
	// project root.
	Settings string `yaml:"settings,omitempty"`
}

// PrecompileConfig selects the files the precompile command processes.
type PrecompileConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
	Format  *bool    `yaml:"format,omitempty"`
}

// Resolved contains resolved configuration values.
type Resolved struct {
	Root         string
	ModulePath   string
	Include      []string
	Exclude      []string
	Format       bool
	SettingsPath string
}

var (
	defaultInclude = []string{"*.go", "*.tmpl"}
	defaultExclude = []string{"*_test.go"}
)

// LoadOptional reads beam.yaml if present.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Resolve loads beam.yaml (if present) and resolves defaults.
func Resolve(dir string) (*Resolved, error) {
	modulePath, err := modulePath(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := LoadOptional(dir)
	if err != nil {
		return nil, err
	}

	include := cfg.Precompile.Include
	if len(include) == 0 {
		include = defaultInclude
	}
	exclude := cfg.Precompile.Exclude
	if exclude == nil {
		exclude = defaultExclude
	}
	for _, p := range append(append([]string{}, include...), exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("precompile: invalid pattern %q: %w", p, err)
		}
	}

	format := false
	if cfg.Precompile.Format != nil {
		format = *cfg.Precompile.Format
	}

	var settingsPath string
	if s := strings.TrimSpace(cfg.Settings); s != "" {
		settingsPath = s
		if !filepath.IsAbs(s) {
			settingsPath = filepath.Join(dir, s)
		}
	}

	return &Resolved{
		Root:         dir,
		ModulePath:   modulePath,
		Include:      include,
		Exclude:      exclude,
		Format:       format,
		SettingsPath: settingsPath,
	}, nil
}

// FindProjectRoot walks up from the current directory to find go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findRoot(dir)
}

func findRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a Go module (no go.mod found)")
		}
		dir = parent
	}
}

func modulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("could not determine module path from go.mod")
	}
	return path, nil
}
