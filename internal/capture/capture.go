// Package capture acquires the raw counter photograph from unreliable camera
// hardware.
//
// An Orchestrator tries its Methods in order. Each method writes into a
// scratch file next to the raw image path; the scratch file replaces the raw
// image only once it decodes. When every method fails the previous raw image
// is reused and the capture is marked stale.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// ErrCaptureFailure is returned when no method produced an image and there
// is no previous image to fall back on.
var ErrCaptureFailure = errors.New("capture failed")

// Capture is an acquired raw image.
type Capture struct {
	Path   string
	Image  image.Image
	Method string
	Stale  bool
	Taken  time.Time

	// Distance is the perceptual hash distance to the previous capture, or
	// -1 when there is nothing to compare with.
	Distance int
}

// Orchestrator acquires images into a fixed raw image path.
type Orchestrator struct {
	path    string
	methods []Method

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
}

// NewOrchestrator returns an Orchestrator writing to path and trying
// methods in the given order.
func NewOrchestrator(path string, methods ...Method) *Orchestrator {
	return &Orchestrator{path: path, methods: methods}
}

// Path returns the raw image path.
func (o *Orchestrator) Path() string {
	return o.path
}

// Methods returns the method names in order.
func (o *Orchestrator) Methods() []string {
	names := make([]string, len(o.methods))
	for i, m := range o.methods {
		names[i] = m.Name()
	}
	return names
}

// Acquire runs the methods until one produces a decodable image.
//
// Each method writes into a scratch file next to the raw image path. The
// scratch file replaces the raw image only after it decodes, so a method
// that exits cleanly but writes garbage never overwrites the last good
// capture. There are no retries; a failed method is not tried again in the
// same call.
//
// Parameters:
//   - ctx: Bounds the whole attempt. Each method also applies its own
//     timeout. Once ctx is done no further methods are started.
//
// Returns:
//   - *Capture: The fresh image with the winning method's name and the
//     perceptual-hash Distance to the previous capture. When every method
//     failed but an image is already on disk, that image is returned with
//     Stale set, Taken set to the file's modification time and Distance -1.
//   - error: Wraps ErrCaptureFailure when no method succeeded and there is
//     no previous image to fall back to.
//
// Calls on one Orchestrator are serialized. Separate processes sharing the
// same path are not coordinated.
func (o *Orchestrator) Acquire(ctx context.Context) (*Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(o.path), err)
	}

	for _, m := range o.methods {
		if ctx.Err() != nil {
			break
		}
		img, ok := o.try(ctx, m)
		if !ok {
			continue
		}
		return &Capture{
			Path:     o.path,
			Image:    img,
			Method:   m.Name(),
			Taken:    time.Now(),
			Distance: o.drift(img),
		}, nil
	}

	img, err := mimaging.Load(o.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %d methods failed and no previous image: %v", ErrCaptureFailure, len(o.methods), err)
	}
	info, _ := os.Stat(o.path)
	taken := time.Now()
	if info != nil {
		taken = info.ModTime()
	}
	slog.Warn("all capture methods failed, reusing previous image", "path", o.path, "taken", taken.Format(time.RFC3339))
	return &Capture{
		Path:     o.path,
		Image:    img,
		Stale:    true,
		Taken:    taken,
		Distance: -1,
	}, nil
}

// try runs one method into the scratch file and promotes the result.
func (o *Orchestrator) try(ctx context.Context, m Method) (image.Image, bool) {
	scratch := o.scratchPath()
	os.Remove(scratch)
	defer os.Remove(scratch)

	res := m.Capture(ctx, scratch)
	if res.Status != Success {
		slog.Warn("capture method failed",
			"method", m.Name(),
			"status", res.Status.String(),
			"error", res.Err,
			"stderr", res.Stderr,
			"elapsed", res.Elapsed)
		return nil, false
	}

	img, err := mimaging.Load(scratch)
	if err != nil {
		slog.Warn("capture method produced no usable image", "method", m.Name(), "error", err)
		return nil, false
	}

	o.rememberPrevious()
	if err := os.Rename(scratch, o.path); err != nil {
		slog.Warn("failed to store capture", "method", m.Name(), "error", err)
		return nil, false
	}

	slog.Debug("captured", "method", m.Name(), "elapsed", res.Elapsed,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, true
}

func (o *Orchestrator) scratchPath() string {
	dir, base := filepath.Split(o.path)
	return filepath.Join(dir, ".capture-"+base)
}

// rememberPrevious seeds the drift baseline from the image about to be
// replaced, when this process has not captured before.
func (o *Orchestrator) rememberPrevious() {
	if o.lastHash != nil {
		return
	}
	prev, err := mimaging.Load(o.path)
	if err != nil {
		return
	}
	if h, err := goimagehash.PerceptionHash(prev); err == nil {
		o.lastHash = h
	}
}

// drift hashes img and returns its distance to the previous capture.
func (o *Orchestrator) drift(img image.Image) int {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		slog.Debug("perceptual hash failed", "error", err)
		return -1
	}

	prev := o.lastHash
	o.lastHash = hash
	if prev == nil {
		return -1
	}

	dist, err := prev.Distance(hash)
	if err != nil {
		return -1
	}
	if dist > DriftWarnDistance {
		slog.Warn("camera view changed noticeably, check rotation and crop", "distance", dist)
	} else {
		slog.Debug("capture drift", "distance", dist)
	}
	return dist
}

// DriftWarnDistance is the pHash distance (out of 64 bits) above which a new
// capture is reported as a view change.
const DriftWarnDistance = 16
