package imaging

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrInvalidImage is returned when an image is missing, empty or unreadable,
// or when rotate/crop would leave no pixels.
var ErrInvalidImage = errors.New("invalid image")

// SmallImageHeight is the height below which UpscaleSmall doubles an image.
const SmallImageHeight = 200

// Crop is a region of interest in canvas pixels.
type Crop struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Normalizer maps raw frames onto the canonical canvas and applies the
// operator's rotation and crop.
//
// A zero Width or Height disables the canvas resize and the raw frame's own
// resolution is used as the canvas.
type Normalizer struct {
	Width  int
	Height int
}

// Normalize maps a raw camera frame onto the operator's region of interest.
//
// The steps always run in this order:
//  1. Resize raw to the canonical Width x Height canvas.
//  2. If rotateDeg is non-zero, rotate the whole canvas about its center
//     with Catmull-Rom interpolation. Uncovered corners are filled black and
//     the canvas keeps its size.
//  3. If crop is non-nil, clamp it into the canvas (see ClampCrop) and cut
//     it out.
//
// Parameters:
//   - raw: The decoded capture. Any size; it is never modified.
//   - rotateDeg: Rotation in the UI convention, clockwise-positive.
//     ProcessingAngle is the only place the sign is converted.
//   - crop: Region of interest in canvas pixels, relative to the rotated
//     canvas. nil keeps the full canvas.
//
// Returns:
//   - *image.NRGBA: Exactly the clamped crop size, or the canvas size when
//     crop is nil. Small results are not upscaled here.
//   - error: ErrInvalidImage when raw or the result is empty.
func (n Normalizer) Normalize(raw image.Image, rotateDeg float64, crop *Crop) (*image.NRGBA, error) {
	if IsEmpty(raw) {
		return nil, ErrInvalidImage
	}

	canvas := n.ToCanvas(raw)
	if rotateDeg != 0 {
		canvas = Rotate(canvas, ProcessingAngle(rotateDeg))
	}
	if crop != nil {
		canvas = CropTo(canvas, *crop)
	}

	if IsEmpty(canvas) {
		return nil, ErrInvalidImage
	}
	return canvas, nil
}

// ToCanvas resizes img to the canonical canvas resolution.
func (n Normalizer) ToCanvas(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n.Width <= 0 || n.Height <= 0 || (b.Dx() == n.Width && b.Dy() == n.Height) {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, n.Width, n.Height, imaging.Lanczos)
}

// ProcessingAngle converts a UI angle (clockwise-positive) to the
// counter-clockwise-positive angle Rotate expects.
func ProcessingAngle(uiDeg float64) float64 {
	return -uiDeg
}

// Rotate turns img counter-clockwise by ccwDeg degrees about its center.
//
// The output keeps the input size. Corners that rotate out of view are lost
// and uncovered area is filled with opaque black. Sampling uses the
// Catmull-Rom cubic kernel.
func Rotate(img image.Image, ccwDeg float64) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := imaging.New(w, h, color.NRGBA{0, 0, 0, 255})
	if w == 0 || h == 0 {
		return dst
	}

	rad := ccwDeg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2

	// source -> destination, Y axis pointing down
	s2d := f64.Aff3{
		cos, sin, (1-cos)*cx - sin*cy,
		-sin, cos, sin*cx + (1-cos)*cy,
	}
	xdraw.CatmullRom.Transform(dst, s2d, src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// ClampCrop fits c inside a w×h canvas: the origin is clamped into
// [0,w-1]×[0,h-1] and the size so the region stays inside, never below one
// pixel.
func ClampCrop(c Crop, w, h int) image.Rectangle {
	x := clamp(c.X, 0, w-1)
	y := clamp(c.Y, 0, h-1)
	cw := clamp(c.W, 1, w-x)
	ch := clamp(c.H, 1, h-y)
	return image.Rect(x, y, x+cw, y+ch)
}

// CropTo extracts the clamped crop region from img.
func CropTo(img image.Image, c Crop) *image.NRGBA {
	b := img.Bounds()
	if b.Empty() {
		return imaging.Clone(img)
	}
	r := ClampCrop(c, b.Dx(), b.Dy()).Add(b.Min)
	return imaging.Crop(img, r)
}

// UpscaleSmall doubles images shorter than minHeight, which helps the
// recognition backends with tiny counter windows. Other images are returned
// unchanged.
func UpscaleSmall(img image.Image, minHeight int) image.Image {
	b := img.Bounds()
	if b.Empty() || b.Dy() >= minHeight {
		return img
	}
	return imaging.Resize(img, b.Dx()*2, b.Dy()*2, imaging.CatmullRom)
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
