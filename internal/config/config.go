// Package config holds the two configuration layers of the meter reader.
//
// Settings is the operator-owned record (rotation, crop rectangle, digit
// count). It lives in a JSON file that the dashboard rewrites at will, so it
// is loaded fresh at the start of every cycle and handed around as a value.
// Nothing in this module keeps a Settings across cycles.
//
// Runtime is process configuration taken from the environment once at
// startup: data locations, canvas geometry, polling interval and the
// recognition backend to use.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultNumDigits is used when the persisted configuration is missing or
// carries a non-positive digit count.
const DefaultNumDigits = 5

// Rect is a crop rectangle in pixels against the canonical canvas.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Settings is one immutable snapshot of the operator configuration.
type Settings struct {
	// Rotate is in degrees, clockwise-positive as the selection UI shows it.
	Rotate float64 `json:"rotate"`

	// Crop is nil when no region of interest has been selected.
	Crop *Rect `json:"crop"`

	NumDigits int `json:"num_digits"`
}

// Defaults returns the configuration used when nothing usable is on disk.
func Defaults() Settings {
	return Settings{NumDigits: DefaultNumDigits}
}

// Validate reports whether s can be stored as-is.
func (s Settings) Validate() error {
	if s.NumDigits <= 0 {
		return fmt.Errorf("num_digits must be positive, got %d", s.NumDigits)
	}
	if s.Crop != nil && (s.Crop.W <= 0 || s.Crop.H <= 0) {
		return fmt.Errorf("crop width and height must be positive, got %dx%d", s.Crop.W, s.Crop.H)
	}
	return nil
}

// Store reads and replaces the persisted Settings file.
type Store struct {
	path string
}

// NewStore returns a Store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns a fresh snapshot. A missing, unreadable or malformed file
// yields Defaults; a non-positive digit count is replaced by the default.
func (s *Store) Load() Settings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("config unreadable, using defaults", "path", s.path, "error", err)
		}
		return Defaults()
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("config malformed, using defaults", "path", s.path, "error", err)
		return Defaults()
	}
	if cfg.NumDigits <= 0 {
		cfg.NumDigits = DefaultNumDigits
	}
	if cfg.Crop != nil && (cfg.Crop.W <= 0 || cfg.Crop.H <= 0) {
		cfg.Crop = nil
	}
	return cfg
}

// Save replaces the persisted configuration.
func (s *Store) Save(cfg Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return WriteFileAtomic(s.path, data)
}

// WriteFileAtomic writes data to a scratch file beside path and renames it
// into place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
