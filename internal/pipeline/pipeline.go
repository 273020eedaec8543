// Package pipeline runs the capture, normalize, recognize and store cycle.
//
// A Pipeline owns no state between cycles apart from what is on disk: the
// operator settings are loaded at the start of every cycle, the raw and
// normalized images are fixed-path files, and readings go straight to the
// readings store. The polling loop and the on-demand operations call the
// same code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ironsheep/meter-reader/internal/capture"
	"github.com/ironsheep/meter-reader/internal/config"
	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
	"github.com/ironsheep/meter-reader/internal/readings"
	"github.com/ironsheep/meter-reader/internal/recognize"
	"github.com/ironsheep/meter-reader/internal/templates"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 60 * time.Second

// ErrNoNormalizedImage is returned by template operations before any
// capture has produced a normalized image.
var ErrNoNormalizedImage = errors.New("no normalized image, capture first")

// Camera acquires a raw image. *capture.Orchestrator implements it.
type Camera interface {
	Acquire(ctx context.Context) (*capture.Capture, error)
}

// Frame is one capture after normalization.
type Frame struct {
	Capture    *capture.Capture
	Settings   config.Settings
	Normalized *image.NRGBA
}

// Result is the outcome of one full cycle.
type Result struct {
	Frame   *Frame
	Reading readings.Reading
}

// Pipeline wires the components together.
type Pipeline struct {
	rt         config.Runtime
	settings   *config.Store
	camera     Camera
	normalizer mimaging.Normalizer
	recognizer recognize.Recognizer
	library    *templates.Library
	readings   *readings.Store
	now        func() time.Time

	// serializes camera use within this process
	mu sync.Mutex
}

// New returns a Pipeline. library serves the value templates and should be
// the same Library the recognizer consults.
func New(rt config.Runtime, camera Camera, recognizer recognize.Recognizer, library *templates.Library) *Pipeline {
	if library == nil {
		library = templates.NewLibrary(rt.ValueTemplateDir())
	}
	return &Pipeline{
		rt:         rt,
		settings:   config.NewStore(rt.ConfigPath),
		camera:     camera,
		normalizer: mimaging.Normalizer{Width: rt.CanvasWidth, Height: rt.CanvasHeight},
		recognizer: recognizer,
		library:    library,
		readings:   readings.NewStore(rt.ReadingsPath()),
		now:        time.Now,
	}
}

// WithClock replaces the timestamp source.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Runtime returns the process configuration.
func (p *Pipeline) Runtime() config.Runtime {
	return p.rt
}

// Settings returns a fresh snapshot of the operator settings.
func (p *Pipeline) Settings() config.Settings {
	return p.settings.Load()
}

// SetSettings replaces the operator settings. The next cycle picks them up.
func (p *Pipeline) SetSettings(s config.Settings) error {
	if err := p.settings.Save(s); err != nil {
		return err
	}
	slog.Info("settings updated", "rotate", s.Rotate, "crop", s.Crop, "num_digits", s.NumDigits)
	return nil
}

// CaptureNormalized acquires an image and normalizes it with the current
// settings. The normalized image is also written to disk for inspection.
func (p *Pipeline) CaptureNormalized(ctx context.Context) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureNormalized(ctx)
}

func (p *Pipeline) captureNormalized(ctx context.Context) (*Frame, error) {
	cfg := p.settings.Load()

	c, err := p.camera.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	norm, err := p.normalizer.Normalize(c.Image, cfg.Rotate, toCrop(cfg.Crop))
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	if err := mimaging.Save(norm, p.rt.NormalizedImagePath()); err != nil {
		slog.Warn("failed to save normalized image", "path", p.rt.NormalizedImagePath(), "error", err)
	}

	return &Frame{Capture: c, Settings: cfg, Normalized: norm}, nil
}

// ReadOnce runs one full cycle. Capture and normalization failures abort the
// cycle without a reading; otherwise exactly one reading is appended, which
// may be a sentinel.
func (p *Pipeline) ReadOnce(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, err := p.captureNormalized(ctx)
	if err != nil {
		return nil, err
	}

	value := p.recognizer.Read(ctx, frame.Normalized, frame.Settings.NumDigits)
	reading := readings.NewReading(p.now(), value)
	if err := p.readings.Append(reading); err != nil {
		return nil, fmt.Errorf("store reading: %w", err)
	}

	attrs := []any{
		"value", value,
		"recognizer", p.recognizer.Name(),
		"method", frame.Capture.Method,
		"stale", frame.Capture.Stale,
	}
	if s, ok := recognize.AsSentinel(value); ok {
		slog.Warn("reading not recognized", append(attrs, "retryable", s.Retryable())...)
	} else {
		slog.Info("reading", attrs...)
	}
	return &Result{Frame: frame, Reading: reading}, nil
}

// Run polls until ctx is done: one cycle immediately, then one per
// interval. A cycle that has started always finishes. Errors and panics are
// logged and never stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := p.rt.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if err := p.library.Watch(ctx); err != nil {
		slog.Warn("value template watcher unavailable, reloading every cycle", "error", err)
	}

	slog.Info("polling started", "interval", interval, "recognizer", p.recognizer.Name(), "data_dir", p.rt.DataDir)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			p.cycle(ctx)
		}
		select {
		case <-ctx.Done():
			slog.Info("polling stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if _, err := p.ReadOnce(context.WithoutCancel(ctx)); err != nil {
		slog.Error("cycle failed", "error", err, "elapsed", time.Since(start))
		return
	}
	slog.Debug("cycle done", "elapsed", time.Since(start))
}

// BuildPositionTemplates slices the current normalized image into one
// positional template per digit.
func (p *Pipeline) BuildPositionTemplates() ([]image.Image, error) {
	img, err := mimaging.Load(p.rt.NormalizedImagePath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoNormalizedImage, err)
	}
	cfg := p.settings.Load()
	slices, err := templates.BuildPositionTemplates(p.rt.PositionTemplateDir(), img, cfg.NumDigits)
	if err != nil {
		return nil, err
	}
	slog.Info("positional templates built", "count", len(slices), "dir", p.rt.PositionTemplateDir())
	return slices, nil
}

// SaveValueTemplate promotes the positional template for slot to the value
// template for digit.
func (p *Pipeline) SaveValueTemplate(digit string, slot int) error {
	img, err := templates.LoadPositionTemplate(p.rt.PositionTemplateDir(), slot)
	if err != nil {
		return fmt.Errorf("positional template %d: %w", slot, err)
	}
	if err := p.library.SaveValueTemplate(digit, img); err != nil {
		return err
	}
	slog.Info("value template saved", "digit", digit, "slot", slot)
	return nil
}

// Latest returns the newest reading.
func (p *Pipeline) Latest() (readings.Reading, bool) {
	return p.readings.Latest()
}

// History returns up to limit readings, newest first.
func (p *Pipeline) History(limit int) []readings.Reading {
	return p.readings.History(limit)
}

// ClearReadings empties the readings log.
func (p *Pipeline) ClearReadings() (int, error) {
	n, err := p.readings.Clear()
	if err == nil {
		slog.Info("readings cleared", "count", n)
	}
	return n, err
}

// Status summarizes the pipeline for operators.
type Status struct {
	Recognizer        string            `json:"recognizer"`
	DataDir           string            `json:"data_dir"`
	Interval          string            `json:"interval"`
	CanvasWidth       int               `json:"canvas_width"`
	CanvasHeight      int               `json:"canvas_height"`
	Settings          config.Settings   `json:"settings"`
	PositionTemplates int               `json:"position_templates"`
	ValueTemplates    []string          `json:"value_templates"`
	Readings          int               `json:"readings"`
	Latest            *readings.Reading `json:"latest,omitempty"`
}

// Status reports the current state.
func (p *Pipeline) Status() Status {
	all := p.readings.All()
	st := Status{
		Recognizer:        p.recognizer.Name(),
		DataDir:           p.rt.DataDir,
		Interval:          p.rt.Interval.String(),
		CanvasWidth:       p.normalizer.Width,
		CanvasHeight:      p.normalizer.Height,
		Settings:          p.settings.Load(),
		PositionTemplates: templates.CountPositionTemplates(p.rt.PositionTemplateDir()),
		ValueTemplates:    p.library.Labels(),
		Readings:          len(all),
	}
	if st.ValueTemplates == nil {
		st.ValueTemplates = []string{}
	}
	if len(all) > 0 {
		latest := all[len(all)-1]
		st.Latest = &latest
	}
	return st
}

func toCrop(r *config.Rect) *mimaging.Crop {
	if r == nil {
		return nil
	}
	return &mimaging.Crop{X: r.X, Y: r.Y, W: r.W, H: r.H}
}
