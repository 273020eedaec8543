package imaging

import (
	"encoding/base64"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createTestImage writes a solid color PNG into a temp dir and returns its path.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := createInMemoryImage(width, height, c)

	path := filepath.Join(t.TempDir(), "test-image.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := createTestImage(t, 100, 80, color.RGBA{255, 0, 0, 255})

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestLoad_NotCached(t *testing.T) {
	path := createTestImage(t, 10, 10, color.RGBA{255, 0, 0, 255})
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	// Overwrite in place, as the capture loop does every cycle.
	if err := Save(createInMemoryImage(20, 5, color.RGBA{0, 0, 255, 255}), path); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 5 {
		t.Errorf("stale image returned: %v", img.Bounds())
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(garbage, []byte("definitely not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.png")},
		{"undecodable", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path); err == nil {
				t.Error("Load should fail")
			}
		})
	}
}

func TestSave_CreatesDirsAndFormats(t *testing.T) {
	dir := t.TempDir()
	img := createInMemoryImage(30, 20, color.RGBA{0, 128, 0, 255})

	for _, name := range []string{"a/b/out.jpg", "out.png"} {
		path := filepath.Join(dir, name)
		if err := Save(img, path); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", name, err)
		}
		if got.Bounds().Dx() != 30 || got.Bounds().Dy() != 20 {
			t.Errorf("%s: dimensions %v", name, got.Bounds())
		}
	}

	if err := Save(img, filepath.Join(dir, "out.xyz")); err == nil {
		t.Error("Save should reject unknown extensions")
	}
}

func TestPreview(t *testing.T) {
	img := createInMemoryImage(100, 50, color.White)

	result, err := Preview(img, 0.5)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.Width != 50 || result.Height != 25 {
		t.Errorf("dimensions: got %dx%d, want 50x25", result.Width, result.Height)
	}
	if result.MimeType != "image/jpeg" {
		t.Errorf("MimeType: got %s, want image/jpeg", result.MimeType)
	}
	if _, err := base64.StdEncoding.DecodeString(result.ImageBase64); err != nil {
		t.Errorf("failed to decode base64: %v", err)
	}
}

func TestEncode_Empty(t *testing.T) {
	if _, err := EncodeJPEG(nil); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("EncodeJPEG(nil): got %v, want ErrInvalidImage", err)
	}
	if _, err := EncodePNG(nil); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("EncodePNG(nil): got %v, want ErrInvalidImage", err)
	}
	if _, err := Preview(nil, 1); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Preview(nil): got %v, want ErrInvalidImage", err)
	}
}
