package recognize

import (
	"context"
	"image"
	"log/slog"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// Engine is a digits-only OCR backend.
type Engine interface {
	ReadDigits(ctx context.Context, img image.Image) (string, error)
}

// ValueSource supplies the per-digit value templates for the fallback.
type ValueSource interface {
	ValueTemplates() (map[string]image.Image, error)
}

// OCRRecognizer reads the counter with an OCR engine and falls back to
// template matching when OCR returns fewer than digitCount digits.
//
// Arbitration between the two results:
//
//  1. OCR with at least digitCount digits wins outright.
//  2. Otherwise the fallback wins if it recognized at least one digit.
//  3. Otherwise a non-empty partial OCR result is kept.
//  4. Otherwise the reading is NotAvailable.
type OCRRecognizer struct {
	engine  Engine
	values  ValueSource
	matcher Matcher
}

// NewOCR returns an OCRRecognizer. values may be nil, which disables the
// fallback.
func NewOCR(engine Engine, values ValueSource) *OCRRecognizer {
	return &OCRRecognizer{engine: engine, values: values, matcher: NewMatcher()}
}

// WithMatcher replaces the fallback matcher settings.
func (r *OCRRecognizer) WithMatcher(m Matcher) *OCRRecognizer {
	r.matcher = m
	return r
}

// Name implements Recognizer.
func (r *OCRRecognizer) Name() string { return "ocr" }

// Read implements Recognizer.
//
// The OCR engine runs first and non-digits are stripped from its output. If
// that leaves at least digitCount digits the result is returned as is,
// including any extra digits. Otherwise the template matcher reads the image
// and the outcome is chosen in this order:
//   - the matcher result, if it contains at least one digit
//   - the short OCR result, if it is not empty
//   - NotAvailable
//
// An empty image is NotAvailable without calling the engine.
func (r *OCRRecognizer) Read(ctx context.Context, img image.Image, digitCount int) string {
	if mimaging.IsEmpty(img) {
		slog.Warn("recognition skipped", "reason", "empty image")
		return string(NotAvailable)
	}

	text := ""
	if r.engine != nil {
		raw, err := r.engine.ReadDigits(ctx, img)
		if err != nil {
			slog.Warn("ocr failed", "error", err)
		}
		text = KeepDigits(raw)
	}
	slog.Debug("ocr result", "text", text, "want", digitCount)

	if len(text) >= digitCount && text != "" {
		return text
	}

	if fallback := r.fallback(img, digitCount); hasDigit(fallback) {
		slog.Debug("template fallback used", "ocr", text, "fallback", fallback)
		return fallback
	}
	if text != "" {
		return text
	}
	return string(NotAvailable)
}

func (r *OCRRecognizer) fallback(img image.Image, digitCount int) string {
	if r.values == nil {
		return ""
	}
	values, err := r.values.ValueTemplates()
	if err != nil {
		slog.Warn("value templates unavailable", "error", err)
		return ""
	}
	if len(values) == 0 {
		return ""
	}
	result, _ := r.matcher.Match(img, digitCount, values)
	return result
}
