// Package ocr reads counter digits with Tesseract.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2) as a
// digits-only engine: the character whitelist is 0-9 and the page is treated
// as a single text line, which matches a counter window.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Raspberry Pi OS / Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// Set TESSDATA_PREFIX when the training data lives outside the default
// location.
//
// # Preprocessing
//
// Counter windows are small and often low contrast. Before OCR every image
// is converted to grayscale, its contrast is raised and it is doubled in
// size when shorter than 200 pixels.
//
// # Error Handling
//
// ReadDigits returns errors for encoding and Tesseract failures. An image
// with no recognizable digits is not an error; the result is empty.
package ocr
