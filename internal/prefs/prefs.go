// Package prefs holds the control panel display preferences and persists
// them as a JSON file.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

const (
	MinFontSize = 10
	MaxFontSize = 24

	DefaultOutputFontSize  = 13
	DefaultHeadingFontSize = 14
	DefaultBackgroundColor = "#ffffff"
	DefaultHeaderColor     = "#667eea"
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Preferences is passed explicitly to whatever renders critique results.
type Preferences struct {
	OutputFontSize  int    `json:"output_font_size"`
	HeadingFontSize int    `json:"heading_font_size"`
	BackgroundColor string `json:"background_color"`
	HeaderColor     string `json:"header_color"`
}

func Defaults() Preferences {
	return Preferences{
		OutputFontSize:  DefaultOutputFontSize,
		HeadingFontSize: DefaultHeadingFontSize,
		BackgroundColor: DefaultBackgroundColor,
		HeaderColor:     DefaultHeaderColor,
	}
}

// Normalize clamps font sizes and replaces malformed colors with defaults.
// Zero font sizes fall back to the defaults.
func (p Preferences) Normalize() Preferences {
	d := Defaults()
	p.OutputFontSize = clampFont(p.OutputFontSize, d.OutputFontSize)
	p.HeadingFontSize = clampFont(p.HeadingFontSize, d.HeadingFontSize)
	p.BackgroundColor = normalizeColor(p.BackgroundColor, d.BackgroundColor)
	p.HeaderColor = normalizeColor(p.HeaderColor, d.HeaderColor)
	return p
}

// Validate reports the first out-of-range field, for callers that reject
// rather than repair input.
func (p Preferences) Validate() error {
	if p.OutputFontSize < MinFontSize || p.OutputFontSize > MaxFontSize {
		return fmt.Errorf("output_font_size must be between %d and %d", MinFontSize, MaxFontSize)
	}
	if p.HeadingFontSize < MinFontSize || p.HeadingFontSize > MaxFontSize {
		return fmt.Errorf("heading_font_size must be between %d and %d", MinFontSize, MaxFontSize)
	}
	if !colorRe.MatchString(p.BackgroundColor) {
		return fmt.Errorf("background_color must be #rrggbb")
	}
	if !colorRe.MatchString(p.HeaderColor) {
		return fmt.Errorf("header_color must be #rrggbb")
	}
	return nil
}

func clampFont(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < MinFontSize:
		return MinFontSize
	case v > MaxFontSize:
		return MaxFontSize
	}
	return v
}

func normalizeColor(c, def string) string {
	c = strings.TrimSpace(c)
	if !colorRe.MatchString(c) {
		return def
	}
	return strings.ToLower(c)
}

// Store reads and writes Preferences at a fixed path.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore ensures the parent directory of path exists.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prefs store: mkdir %s: %w", filepath.Dir(path), err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Load returns the stored preferences, or the defaults if none were saved.
func (s *Store) Load() (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Defaults(), fmt.Errorf("prefs store: read: %w", err)
	}

	p := Defaults()
	if err := json.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("prefs store: unmarshal: %w", err)
	}
	return p.Normalize(), nil
}

// Save normalizes p and writes it atomically. It returns what was stored.
func (s *Store) Save(p Preferences) (Preferences, error) {
	p = p.Normalize()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return p, fmt.Errorf("prefs store: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*.json")
	if err != nil {
		return p, fmt.Errorf("prefs store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Debug("prefs temp cleanup failed", "path", tmpName, "error", err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return p, fmt.Errorf("prefs store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return p, fmt.Errorf("prefs store: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return p, fmt.Errorf("prefs store: rename: %w", err)
	}
	return p, nil
}
