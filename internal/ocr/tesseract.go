package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/otiai10/gosseract/v2"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// DigitWhitelist restricts Tesseract to counter characters.
const DigitWhitelist = "0123456789"

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "eng"

// contrastBoost is the bild contrast change applied before OCR.
const contrastBoost = 0.5

// Tesseract is a digits-only OCR engine.
//
// A new gosseract client is created per call, so a Tesseract value is safe
// for concurrent use.
type Tesseract struct {
	Language       string
	TessdataPrefix string
}

// NewTesseract returns an engine for language (DefaultLanguage when empty).
// tessdataPrefix may be empty to use Tesseract's default search path.
func NewTesseract(language, tessdataPrefix string) *Tesseract {
	if language == "" {
		language = DefaultLanguage
	}
	return &Tesseract{Language: language, TessdataPrefix: tessdataPrefix}
}

// ReadDigits runs OCR on img and returns the recognized text with
// whitespace trimmed.
//
// Tesseract itself cannot be interrupted; ctx is only checked before the
// call starts.
func (t *Tesseract) ReadDigits(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := mimaging.EncodePNG(Preprocess(img))
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(t.Language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetWhitelist(DigitWhitelist); err != nil {
		return "", fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Preprocess prepares a counter image for OCR: grayscale, raised contrast,
// and a 2x upscale for images shorter than mimaging.SmallImageHeight.
func Preprocess(img image.Image) image.Image {
	if mimaging.IsEmpty(img) {
		return img
	}
	gray := effect.Grayscale(img)
	contrasted := adjust.Contrast(gray, contrastBoost)
	return mimaging.UpscaleSmall(contrasted, mimaging.SmallImageHeight)
}

// Info describes the OCR subsystem.
type Info struct {
	Available      bool   `json:"available"`
	Version        string `json:"version,omitempty"`
	Backend        string `json:"backend"`
	Language       string `json:"language"`
	TessdataPrefix string `json:"tessdata_prefix,omitempty"`
}

// Info reports the linked Tesseract version and the engine settings.
func (t *Tesseract) Info() Info {
	client := gosseract.NewClient()
	defer client.Close()

	version := client.Version()
	return Info{
		Available:      version != "",
		Version:        version,
		Backend:        "gosseract",
		Language:       t.Language,
		TessdataPrefix: t.TessdataPrefix,
	}
}
