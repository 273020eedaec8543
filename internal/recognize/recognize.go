// Package recognize turns a normalized counter image into a digit string.
//
// Two strategies share the Recognizer contract and exactly one is chosen
// when the process starts:
//
//   - OCRRecognizer runs a digits-only OCR engine and, when the result is
//     too short, falls back to per-slot template matching against the
//     operator's value templates.
//   - VisionRecognizer asks a generative vision model to read the counter.
//
// Read never returns an error. Failures are reported as Sentinel values so
// that a reading is still recorded for the attempt and callers can tell the
// failure modes apart.
package recognize

import (
	"context"
	"image"
	"strings"
	"unicode"
)

// Recognizer reads digitCount digits from a normalized image.
//
// The result is either a digit string, a partial string that may contain
// Unknown placeholders, or one of the Sentinel values.
type Recognizer interface {
	Name() string
	Read(ctx context.Context, img image.Image, digitCount int) string
}

// Sentinel is a reserved non-digit value recorded instead of a reading.
type Sentinel string

const (
	// NotAvailable means no backend produced any usable digit.
	NotAvailable Sentinel = "N/A"

	// NoCredential means the vision backend has no API key configured.
	NoCredential Sentinel = "ERR_NO_KEY"

	// EmptyImage means the vision backend was handed an empty image.
	EmptyImage Sentinel = "ERR_EMPTY_IMG"

	// CallFailed is any other vision backend failure.
	CallFailed Sentinel = "ERROR"
)

// Unknown marks a slot whose best template match was not confident enough.
const Unknown = '?'

// Retryable reports whether the condition may clear by itself on a later
// cycle. NoCredential and EmptyImage need operator attention.
func (s Sentinel) Retryable() bool {
	switch s {
	case NotAvailable, CallFailed:
		return true
	default:
		return false
	}
}

// IsSentinel reports whether value is one of the reserved failure values.
func IsSentinel(value string) bool {
	_, ok := AsSentinel(value)
	return ok
}

// AsSentinel returns the Sentinel matching value, if any.
func AsSentinel(value string) (Sentinel, bool) {
	switch s := Sentinel(value); s {
	case NotAvailable, NoCredential, EmptyImage, CallFailed:
		return s, true
	}
	return "", false
}

// KeepDigits strips every character that is not an ASCII digit.
func KeepDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// hasDigit reports whether s contains at least one ASCII digit.
func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}
