package templates

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// Digits are the value template labels, in order.
var Digits = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

var valueExts = []string{".png", ".jpg", ".jpeg"}

// Library serves the operator-curated value templates (0-9).
//
// Templates are decoded lazily. While Watch is running the decoded set is
// cached and evicted whenever the directory changes; without a watcher every
// call reads the directory again, so edits are never missed.
//
// Library is safe for concurrent use.
type Library struct {
	dir string

	mu       sync.RWMutex
	cache    map[string]image.Image
	gen      uint64
	watching bool
}

// NewLibrary returns a Library over the value template directory dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the value template directory.
func (l *Library) Dir() string {
	return l.dir
}

// ValueTemplates returns the available templates keyed by digit label.
// A missing directory yields an empty set. Undecodable files are skipped.
// The returned map must not be modified.
func (l *Library) ValueTemplates() (map[string]image.Image, error) {
	l.mu.RLock()
	if l.watching && l.cache != nil {
		set := l.cache
		l.mu.RUnlock()
		return set, nil
	}
	gen := l.gen
	l.mu.RUnlock()

	set, err := l.load()
	if err != nil {
		return nil, err
	}

	// An eviction while loading means the set may already be stale.
	l.mu.Lock()
	if l.watching && l.gen == gen {
		l.cache = set
	}
	l.mu.Unlock()
	return set, nil
}

// Labels returns the digits that currently have a template, sorted.
func (l *Library) Labels() []string {
	set, err := l.ValueTemplates()
	if err != nil {
		return nil
	}
	labels := make([]string, 0, len(set))
	for d := range set {
		labels = append(labels, d)
	}
	sort.Strings(labels)
	return labels
}

// SaveValueTemplate stores img as the reference for digit, replacing any
// previous reference in whatever format it was stored.
func (l *Library) SaveValueTemplate(digit string, img image.Image) error {
	if !isDigitLabel(digit) {
		return fmt.Errorf("invalid digit label %q", digit)
	}
	if mimaging.IsEmpty(img) {
		return mimaging.ErrInvalidImage
	}

	for _, ext := range valueExts {
		path := filepath.Join(l.dir, digit+ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to replace template %s: %w", digit, err)
		}
	}
	if err := mimaging.Save(img, filepath.Join(l.dir, digit+".png")); err != nil {
		return err
	}
	l.Evict()
	return nil
}

// Evict drops the cached set; the next call reloads from disk.
func (l *Library) Evict() {
	l.mu.Lock()
	l.cache = nil
	l.gen++
	l.mu.Unlock()
}

// Watch enables caching and evicts the cache on every change to the
// directory until ctx is done. The directory is created if needed.
func (l *Library) Watch(ctx context.Context) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", l.dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	l.mu.Lock()
	l.watching = true
	l.cache = nil
	l.mu.Unlock()

	go func() {
		defer func() {
			w.Close()
			l.mu.Lock()
			l.watching = false
			l.cache = nil
			l.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				slog.Debug("value templates changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
				l.Evict()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("template watch error", "error", err)
				l.Evict()
			}
		}
	}()

	return nil
}

func (l *Library) load() (map[string]image.Image, error) {
	set := make(map[string]image.Image, len(Digits))

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", l.dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !isValueExt(ext) {
			continue
		}
		label := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !isDigitLabel(label) {
			continue
		}
		if _, dup := set[label]; dup {
			continue
		}
		img, err := mimaging.Load(filepath.Join(l.dir, e.Name()))
		if err != nil {
			slog.Warn("skipping value template", "file", e.Name(), "error", err)
			continue
		}
		set[label] = img
	}
	return set, nil
}

func isDigitLabel(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

func isValueExt(ext string) bool {
	for _, v := range valueExts {
		if ext == v {
			return true
		}
	}
	return false
}
