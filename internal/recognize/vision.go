package recognize

import (
	"context"
	"image"
	"log/slog"
	"time"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
)

// VisionPrompt is the instruction sent along with the counter image.
const VisionPrompt = "Read the numeric value from this water meter counter. " +
	"Return ONLY the digits as a single number. " +
	"This is a mechanical counter; some digits might be halfway turned."

// DefaultVisionTimeout bounds one vision call.
const DefaultVisionTimeout = 30 * time.Second

// VisionModel is a generative model that answers a text prompt about one
// image.
type VisionModel interface {
	Describe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

// VisionRecognizer reads the counter with a VisionModel.
//
// A nil model means no credential was configured; every Read then returns
// NoCredential without contacting anything.
type VisionRecognizer struct {
	model   VisionModel
	timeout time.Duration
}

// NewVision returns a VisionRecognizer. A non-positive timeout selects
// DefaultVisionTimeout.
func NewVision(model VisionModel, timeout time.Duration) *VisionRecognizer {
	if timeout <= 0 {
		timeout = DefaultVisionTimeout
	}
	return &VisionRecognizer{model: model, timeout: timeout}
}

// Name implements Recognizer.
func (r *VisionRecognizer) Name() string { return "vision" }

// Read implements Recognizer. The digitCount is not sent to the model; the
// model returns whatever it reads.
func (r *VisionRecognizer) Read(ctx context.Context, img image.Image, digitCount int) string {
	if r.model == nil {
		slog.Error("vision recognition unavailable", "reason", "no API key configured")
		return string(NoCredential)
	}
	if mimaging.IsEmpty(img) {
		slog.Error("vision recognition skipped", "reason", "empty image")
		return string(EmptyImage)
	}

	payload, err := mimaging.EncodeJPEG(mimaging.UpscaleSmall(img, mimaging.SmallImageHeight))
	if err != nil {
		slog.Error("vision image encoding failed", "error", err)
		return string(CallFailed)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.model.Describe(callCtx, VisionPrompt, payload, "image/jpeg")
	if err != nil {
		slog.Error("vision call failed", "error", err, "elapsed", time.Since(start))
		return string(CallFailed)
	}
	slog.Debug("vision response", "text", text, "elapsed", time.Since(start))

	digits := KeepDigits(text)
	if digits == "" {
		return string(NotAvailable)
	}
	return digits
}
