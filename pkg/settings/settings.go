// Package settings loads application settings.
//
// Settings are read from a YAML file (conventionally settings.yaml next to
// the application) and resolved into concrete values with Resolve. A missing
// file is not an error; every field has a default.
//
//	w: 1920
//	h: 1080
//	screenResolution: hd
//	reactivityMode: proxy
//	logLevel: debug
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/beam/pkg/reactivity"
)

// Defaults.
const (
	DefaultWidth       = 1920
	DefaultHeight      = 1080
	DefaultHoldTimeout = 50 * time.Millisecond
	DefaultLogLevel    = "warn"
)

// Settings mirrors the settings file. Zero values mean "use the default".
type Settings struct {
	W                float64 `yaml:"w,omitempty"`
	H                float64 `yaml:"h,omitempty"`
	ReactivityMode   string  `yaml:"reactivityMode,omitempty"`
	LogLevel         string  `yaml:"logLevel,omitempty"`
	PixelRatio       float64 `yaml:"pixelRatio,omitempty"`
	ScreenResolution string  `yaml:"screenResolution,omitempty"`
	// HoldTimeout is in milliseconds.
	HoldTimeout    int `yaml:"holdTimeout,omitempty"`
	MaxEffectDepth int `yaml:"maxEffectDepth,omitempty"`
}

// Resolved contains resolved settings.
type Resolved struct {
	Width          float64
	Height         float64
	ReactivityMode reactivity.Mode
	LogLevel       slog.Level
	PixelRatio     float64
	HoldTimeout    time.Duration
	MaxEffectDepth int
}

// Load reads the settings file at path. A missing file yields empty
// settings.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes settings from YAML.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// Resolve applies defaults and validates. A nil receiver resolves to the
// defaults.
func (s *Settings) Resolve() (*Resolved, error) {
	if s == nil {
		s = &Settings{}
	}
	r := &Resolved{
		Width:          s.W,
		Height:         s.H,
		PixelRatio:     s.PixelRatio,
		HoldTimeout:    time.Duration(s.HoldTimeout) * time.Millisecond,
		MaxEffectDepth: s.MaxEffectDepth,
	}
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.Width < 0 || r.Height < 0 {
		return nil, fmt.Errorf("invalid stage size %gx%g", r.Width, r.Height)
	}
	if r.HoldTimeout == 0 {
		r.HoldTimeout = DefaultHoldTimeout
	}
	if r.MaxEffectDepth == 0 {
		r.MaxEffectDepth = reactivity.DefaultMaxDepth
	}
	if r.MaxEffectDepth < 0 || r.HoldTimeout < 0 {
		return nil, fmt.Errorf("maxEffectDepth and holdTimeout must not be negative")
	}

	mode, err := reactivity.ParseMode(s.ReactivityMode)
	if err != nil {
		return nil, err
	}
	r.ReactivityMode = mode

	level, err := ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	r.LogLevel = level

	if r.PixelRatio == 0 {
		ratio, err := pixelRatio(s.ScreenResolution)
		if err != nil {
			return nil, err
		}
		r.PixelRatio = ratio
	}
	if r.PixelRatio < 0 {
		return nil, fmt.Errorf("invalid pixelRatio %g", r.PixelRatio)
	}
	return r, nil
}

// ParseLevel converts a logLevel value. The empty string selects warn.
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = DefaultLogLevel
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid logLevel %q", s)
	}
	return level, nil
}

// pixelRatio maps a screen resolution to the ratio against the 1080p
// coordinate space templates are written in.
func pixelRatio(resolution string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(resolution)) {
	case "", "fhd", "fullhd", "1080p", "1080":
		return 1, nil
	case "hd", "720p", "720":
		return 2.0 / 3.0, nil
	case "4k", "2160p", "2160":
		return 2, nil
	}
	return 0, fmt.Errorf("unknown screenResolution %q", resolution)
}
