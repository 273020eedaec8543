package imaging

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates a solid color image in memory.
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createQuadrantImage fills each quadrant with a different color:
// red top-left, green top-right, blue bottom-left, white bottom-right.
func createQuadrantImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{255, 0, 0, 255}
			case x >= width/2 && y < height/2:
				c = color.RGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.RGBA{0, 0, 255, 255}
			default:
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// createGradientImage creates an image whose pixels are unique enough that
// any geometric change shows up in the content.
func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestNormalize_CropInsideBounds(t *testing.T) {
	n := Normalizer{Width: 400, Height: 300}
	raw := createGradientImage(400, 300)

	tests := []struct {
		name string
		crop Crop
	}{
		{"top-left", Crop{X: 0, Y: 0, W: 50, H: 20}},
		{"middle", Crop{X: 120, Y: 80, W: 200, H: 60}},
		{"touching edges", Crop{X: 300, Y: 200, W: 100, H: 100}},
		{"single pixel", Crop{X: 10, Y: 10, W: 1, H: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(raw, 0, &tt.crop)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if out.Bounds().Dx() != tt.crop.W || out.Bounds().Dy() != tt.crop.H {
				t.Errorf("dimensions: got %dx%d, want %dx%d",
					out.Bounds().Dx(), out.Bounds().Dy(), tt.crop.W, tt.crop.H)
			}
		})
	}
}

func TestNormalize_CropInsideBoundsRotated(t *testing.T) {
	n := Normalizer{Width: 400, Height: 300}
	crop := Crop{X: 40, Y: 30, W: 123, H: 45}

	out, err := n.Normalize(createGradientImage(400, 300), 17.5, &crop)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.Bounds().Dx() != 123 || out.Bounds().Dy() != 45 {
		t.Errorf("dimensions: got %dx%d, want 123x45", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestNormalize_CropClamped(t *testing.T) {
	n := Normalizer{Width: 200, Height: 100}
	raw := createInMemoryImage(200, 100, color.RGBA{10, 20, 30, 255})

	tests := []struct {
		name         string
		crop         Crop
		wantW, wantH int
	}{
		{"overflow right", Crop{X: 150, Y: 0, W: 100, H: 50}, 50, 50},
		{"overflow bottom", Crop{X: 0, Y: 80, W: 20, H: 100}, 20, 20},
		{"origin past right edge", Crop{X: 500, Y: 0, W: 30, H: 10}, 1, 10},
		{"negative origin", Crop{X: -20, Y: -5, W: 30, H: 10}, 30, 10},
		{"zero size", Crop{X: 10, Y: 10, W: 0, H: 0}, 1, 1},
		{"negative size", Crop{X: 10, Y: 10, W: -4, H: -9}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(raw, 0, &tt.crop)
			if err != nil {
				t.Fatalf("Normalize should clamp, not fail: %v", err)
			}
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d",
					out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestNormalize_ResizesToCanvasFirst(t *testing.T) {
	n := Normalizer{Width: 200, Height: 100}
	raw := createQuadrantImage(800, 400)

	out, err := n.Normalize(raw, 0, nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 100 {
		t.Fatalf("dimensions: got %dx%d, want 200x100", out.Bounds().Dx(), out.Bounds().Dy())
	}

	// Crop coordinates are canvas coordinates, not raw ones.
	crop := Crop{X: 150, Y: 75, W: 10, H: 10}
	out, err = n.Normalize(raw, 0, &crop)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if r, g, b := rgbAt(out, 5, 5); r < 240 || g < 240 || b < 240 {
		t.Errorf("expected white bottom-right quadrant, got (%d,%d,%d)", r, g, b)
	}
}

func TestNormalize_NoCrop(t *testing.T) {
	n := Normalizer{}
	raw := createInMemoryImage(64, 48, color.White)

	out, err := n.Normalize(raw, 0, nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
		t.Errorf("dimensions: got %dx%d, want 64x48", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestNormalize_InvalidImage(t *testing.T) {
	n := Normalizer{Width: 100, Height: 100}

	tests := []struct {
		name string
		img  image.Image
	}{
		{"nil", nil},
		{"empty", image.NewRGBA(image.Rect(0, 0, 0, 0))},
		{"zero width", image.NewRGBA(image.Rect(0, 0, 0, 10))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.img, 0, nil)
			if !errors.Is(err, ErrInvalidImage) {
				t.Errorf("got %v, want ErrInvalidImage", err)
			}
		})
	}
}

func TestNormalize_RotateIsClockwiseInUIConvention(t *testing.T) {
	n := Normalizer{Width: 100, Height: 100}
	raw := createQuadrantImage(100, 100)

	out, err := n.Normalize(raw, 90, nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Fatalf("rotation must keep canvas size, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}

	// A clockwise quarter turn moves the red top-left quadrant to the top-right.
	if r, g, b := rgbAt(out, 75, 25); r < 200 || g > 50 || b > 50 {
		t.Errorf("top-right after 90° clockwise: got (%d,%d,%d), want red", r, g, b)
	}
	// ...and the blue bottom-left quadrant to the top-left.
	if r, g, b := rgbAt(out, 25, 25); b < 200 || r > 50 || g > 50 {
		t.Errorf("top-left after 90° clockwise: got (%d,%d,%d), want blue", r, g, b)
	}
}

func TestNormalize_RotateFillsBlack(t *testing.T) {
	n := Normalizer{Width: 200, Height: 100}
	raw := createInMemoryImage(200, 100, color.White)

	out, err := n.Normalize(raw, 45, nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if r, g, b := rgbAt(out, 0, 0); r != 0 || g != 0 || b != 0 {
		t.Errorf("corner should be black fill, got (%d,%d,%d)", r, g, b)
	}
	if _, _, _, a := out.At(0, 0).RGBA(); a != 0xffff {
		t.Errorf("fill should be opaque, got alpha %d", a)
	}
	if r, g, b := rgbAt(out, 100, 50); r < 240 || g < 240 || b < 240 {
		t.Errorf("center should stay white, got (%d,%d,%d)", r, g, b)
	}
}

func TestNormalize_RotateThenCropOrder(t *testing.T) {
	n := Normalizer{Width: 240, Height: 160}
	raw := createGradientImage(240, 160)
	crop := Crop{X: 20, Y: 15, W: 60, H: 30}

	rotatedFirst, err := n.Normalize(raw, 30, &crop)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// The opposite order: crop the raw canvas, then rotate the small piece.
	croppedFirst := Rotate(CropTo(n.ToCanvas(raw), crop), ProcessingAngle(30))

	if rotatedFirst.Bounds() != croppedFirst.Bounds() {
		t.Fatalf("bounds differ: %v vs %v", rotatedFirst.Bounds(), croppedFirst.Bounds())
	}

	differing := 0
	for y := 0; y < crop.H; y++ {
		for x := 0; x < crop.W; x++ {
			r1, g1, b1 := rgbAt(rotatedFirst, x, y)
			r2, g2, b2 := rgbAt(croppedFirst, x, y)
			if r1 != r2 || g1 != g2 || b1 != b2 {
				differing++
			}
		}
	}
	if differing < crop.W*crop.H/2 {
		t.Errorf("rotate-then-crop should differ from crop-then-rotate, only %d of %d pixels differ",
			differing, crop.W*crop.H)
	}
}

func TestProcessingAngle(t *testing.T) {
	tests := []struct {
		ui, want float64
	}{
		{0, 0},
		{90, -90},
		{-12.5, 12.5},
	}
	for _, tt := range tests {
		if got := ProcessingAngle(tt.ui); got != tt.want {
			t.Errorf("ProcessingAngle(%v): got %v, want %v", tt.ui, got, tt.want)
		}
	}
}

func TestClampCrop(t *testing.T) {
	tests := []struct {
		name string
		crop Crop
		want image.Rectangle
	}{
		{"inside", Crop{X: 10, Y: 10, W: 20, H: 20}, image.Rect(10, 10, 30, 30)},
		{"x overflow", Crop{X: 90, Y: 0, W: 50, H: 10}, image.Rect(90, 0, 100, 10)},
		{"clamped origin", Crop{X: 120, Y: 70, W: 5, H: 5}, image.Rect(99, 49, 100, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampCrop(tt.crop, 100, 50); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpscaleSmall(t *testing.T) {
	small := createInMemoryImage(120, 40, color.White)
	out := UpscaleSmall(small, SmallImageHeight)
	if out.Bounds().Dx() != 240 || out.Bounds().Dy() != 80 {
		t.Errorf("small image: got %dx%d, want 240x80", out.Bounds().Dx(), out.Bounds().Dy())
	}

	large := createInMemoryImage(120, 240, color.White)
	if out := UpscaleSmall(large, SmallImageHeight); out != image.Image(large) {
		t.Error("large image should be returned unchanged")
	}
}
