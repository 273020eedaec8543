package recognize

import (
	"context"
	"image"
	"sync"
)

// LazyRecognizer defers building a backend until the first Read, so that
// commands which only capture or manage templates never open an OCR or
// model client.
type LazyRecognizer struct {
	name  string
	build func() Recognizer

	mu sync.Mutex
	r  Recognizer
}

// NewLazy returns a Recognizer named name whose backend is created by build
// on first use. build runs at most once.
func NewLazy(name string, build func() Recognizer) *LazyRecognizer {
	return &LazyRecognizer{name: name, build: build}
}

// Name implements Recognizer without building the backend.
func (l *LazyRecognizer) Name() string { return l.name }

// Read implements Recognizer.
func (l *LazyRecognizer) Read(ctx context.Context, img image.Image, digitCount int) string {
	return l.get().Read(ctx, img, digitCount)
}

// Built reports whether the backend has been created.
func (l *LazyRecognizer) Built() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r != nil
}

func (l *LazyRecognizer) get() Recognizer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.r == nil {
		l.r = l.build()
	}
	return l.r
}
