// Package readings persists the bounded history of meter readings.
//
// The history is a single JSON array of {timestamp, value} objects, oldest
// first, holding at most MaxHistory entries. Every append rewrites the whole
// file through a temp file and rename, so a crash leaves either the old or
// the new history on disk.
package readings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironsheep/meter-reader/internal/config"
)

// MaxHistory is the number of readings kept on disk.
const MaxHistory = 100

// TimestampFormat is the layout of Reading.Timestamp, in local time.
const TimestampFormat = "2006-01-02 15:04:05"

// Reading is one recognition result. Value is a digit string, a partial
// string with '?' placeholders, or a failure sentinel.
type Reading struct {
	Timestamp string `json:"timestamp"`
	Value     string `json:"value"`
}

// NewReading stamps value with t.
func NewReading(t time.Time, value string) Reading {
	return Reading{Timestamp: t.Format(TimestampFormat), Value: value}
}

// Time parses the timestamp in the local zone.
func (r Reading) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampFormat, r.Timestamp, time.Local)
}

// Store is the readings file. A Store serializes its own writers; the
// file is otherwise assumed to have a single writing process.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the readings file path.
func (s *Store) Path() string {
	return s.path
}

// Append adds r to the end of the history, evicting the oldest entries
// beyond MaxHistory.
func (s *Store) Append(r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.load(), r)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	return s.write(history)
}

// All returns every stored reading, oldest first. A missing or malformed
// file yields an empty history.
func (s *Store) All() []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Latest returns the newest reading.
func (s *Store) Latest() (Reading, bool) {
	all := s.All()
	if len(all) == 0 {
		return Reading{}, false
	}
	return all[len(all)-1], true
}

// History returns up to limit of the newest readings, newest first.
// A non-positive limit returns everything.
func (s *Store) History(limit int) []Reading {
	all := s.All()
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Reading, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// Clear empties the history and returns how many readings were dropped.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.load())
	if err := s.write([]Reading{}); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) load() []Reading {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read readings", "path", s.path, "error", err)
		}
		return []Reading{}
	}

	var history []Reading
	if err := json.Unmarshal(data, &history); err != nil {
		slog.Warn("readings file malformed, starting empty", "path", s.path, "error", err)
		return []Reading{}
	}
	if history == nil {
		history = []Reading{}
	}
	return history
}

func (s *Store) write(history []Reading) error {
	data, err := json.MarshalIndent(history, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}
	return config.WriteFileAtomic(s.path, data)
}
