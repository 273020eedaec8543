// Package templates manages the two reference image sets used for digit
// recognition.
//
// Positional templates are slot-indexed slices (pos_0.png .. pos_N-1.png)
// cut from one normalized capture. They show what each counter wheel looked
// like at that moment and are regenerated only on operator request.
//
// Value templates are per-digit references (0.png .. 9.png) that the
// template matcher compares segments against. They are curated by the
// operator, typically by promoting a positional slice whose digit is known.
//
// The two sets are stored in separate directories and no code path reads one
// in place of the other.
package templates

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// ErrInvalidSlotCount is returned when an image cannot be split into the
// requested number of slots.
var ErrInvalidSlotCount = errors.New("invalid slot count")

const positionPrefix = "pos_"

// Split cuts img into n vertical slices of width W/n (integer division).
// The last slice also takes the W%n remainder columns.
//
// Split is the one slicing rule shared by template building and the
// template-matching fallback.
func Split(img image.Image, n int) ([]image.Image, error) {
	if mimaging.IsEmpty(img) {
		return nil, mimaging.ErrInvalidImage
	}
	b := img.Bounds()
	if n <= 0 || n > b.Dx() {
		return nil, fmt.Errorf("%w: %d slots for width %d", ErrInvalidSlotCount, n, b.Dx())
	}

	step := b.Dx() / n
	slices := make([]image.Image, n)
	for i := 0; i < n; i++ {
		x1 := b.Min.X + i*step
		x2 := x1 + step
		if i == n-1 {
			x2 = b.Max.X
		}
		slices[i] = imaging.Crop(img, image.Rect(x1, b.Min.Y, x2, b.Max.Y))
	}
	return slices, nil
}

// BuildPositionTemplates slices a normalized image into digitCount
// positional templates and persists them in dir, replacing any previous set.
// It returns the slices in slot order.
func BuildPositionTemplates(dir string, img image.Image, digitCount int) ([]image.Image, error) {
	slices, err := Split(img, digitCount)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := removePositionTemplates(dir); err != nil {
		return nil, err
	}

	for i, s := range slices {
		if err := mimaging.Save(s, PositionTemplatePath(dir, i)); err != nil {
			return nil, fmt.Errorf("failed to save slot %d: %w", i, err)
		}
	}
	return slices, nil
}

// PositionTemplatePath is the file holding the slice for slot.
func PositionTemplatePath(dir string, slot int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.png", positionPrefix, slot))
}

// LoadPositionTemplate reads the persisted slice for slot.
func LoadPositionTemplate(dir string, slot int) (image.Image, error) {
	if slot < 0 {
		return nil, fmt.Errorf("%w: slot %d", ErrInvalidSlotCount, slot)
	}
	return mimaging.Load(PositionTemplatePath(dir, slot))
}

// CountPositionTemplates returns how many pos_<i>.png files exist in dir.
func CountPositionTemplates(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if _, ok := positionSlot(e.Name()); ok && !e.IsDir() {
			count++
		}
	}
	return count
}

// removePositionTemplates deletes an earlier set so a smaller digit count
// does not leave orphaned slots behind.
func removePositionTemplates(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, e := range entries {
		if _, ok := positionSlot(e.Name()); !ok || e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func positionSlot(name string) (int, bool) {
	if !strings.HasPrefix(name, positionPrefix) || filepath.Ext(name) != ".png" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, positionPrefix), ".png"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
