package recognize

import (
	"image"
	"math"
	"strings"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/meter-reader/internal/templates"
)

// DefaultThreshold is the confidence threshold: a slot whose best score is
// not above it is reported as Unknown.
const DefaultThreshold = 0.6

// flatVariance is the per-pixel lightness variance below which a patch is
// treated as uniform. Lightness is in [0, 1].
const flatVariance = 1e-9

// Matcher classifies counter slots by normalized cross-correlation against
// per-digit value templates.
//
// Pixel intensity is CIE-Lab lightness rather than an RGB luma, so red
// fractional wheels and black integer wheels land on the same scale. Both
// sides get the same light Gaussian blur to suppress sensor noise.
type Matcher struct {
	Threshold  float64
	BlurRadius float64
}

// NewMatcher returns a Matcher with the default threshold and blur.
func NewMatcher() Matcher {
	return Matcher{Threshold: DefaultThreshold, BlurRadius: 1.0}
}

// SlotMatch is the outcome for one slot.
type SlotMatch struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Match reads a counter image slot by slot against the value templates.
//
// img is split into digitCount slots with templates.Split, the same rule
// used to build positional templates. Every value template is resized to the
// slot's size and scored with zero-mean normalized cross-correlation on the
// blurred CIE-Lab lightness of both images. The best label wins; ties go to
// the lower digit.
//
// Parameters:
//   - img: The normalized counter image.
//   - digitCount: Number of slots to read. Must be positive and no larger
//     than the image width.
//   - values: Value templates keyed by digit label ("0".."9").
//
// Returns:
//   - string: One character per slot, left to right. A slot whose best score
//     is at or below Threshold reads as Unknown. Empty when img cannot be
//     split or values is empty.
//   - []SlotMatch: The best label and score for every slot, for logging.
func (m Matcher) Match(img image.Image, digitCount int, values map[string]image.Image) (string, []SlotMatch) {
	slots, err := templates.Split(img, digitCount)
	if err != nil || len(values) == 0 {
		return "", nil
	}

	var sb strings.Builder
	details := make([]SlotMatch, len(slots))
	for i, slot := range slots {
		label, score := m.best(slot, values)
		details[i] = SlotMatch{Label: label, Score: score}
		if label == "" || score <= m.Threshold {
			sb.WriteRune(Unknown)
			continue
		}
		sb.WriteString(label)
	}
	return sb.String(), details
}

// best returns the highest scoring label for slot. Labels are tried in
// digit order so ties resolve to the lower digit.
func (m Matcher) best(slot image.Image, values map[string]image.Image) (string, float64) {
	w, h := slot.Bounds().Dx(), slot.Bounds().Dy()
	slotL := m.lightness(slot)

	bestLabel, bestScore := "", math.Inf(-1)
	for _, label := range templates.Digits {
		tpl, ok := values[label]
		if !ok {
			continue
		}
		resized := imaging.Resize(tpl, w, h, imaging.Linear)
		score := correlate(slotL, m.lightness(resized))
		if score > bestScore {
			bestLabel, bestScore = label, score
		}
	}
	return bestLabel, bestScore
}

// Score compares two equally sized images and returns their zero-mean
// normalized cross-correlation in [-1, 1]. Images of different sizes, or
// with no intensity variation, score 0.
func (m Matcher) Score(a, b image.Image) float64 {
	if a.Bounds().Size() != b.Bounds().Size() {
		return 0
	}
	return correlate(m.lightness(a), m.lightness(b))
}

func (m Matcher) lightness(img image.Image) []float64 {
	src := img
	if m.BlurRadius > 0 {
		src = blur.Gaussian(img, m.BlurRadius)
	}

	b := src.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := colorful.MakeColor(src.At(x, y))
			if !ok {
				// fully transparent
				out = append(out, 0)
				continue
			}
			l, _, _ := c.Lab()
			out = append(out, l)
		}
	}
	return out
}

// correlate is the zero-mean normalized cross-correlation of two equally
// long intensity vectors.
func correlate(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(len(a))
	meanB /= float64(len(b))

	var num, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		varA += da * da
		varB += db * db
	}

	// A flat patch carries no shape; rounding noise must not score.
	n := float64(len(a))
	if varA/n < flatVariance || varB/n < flatVariance {
		return 0
	}
	return num / math.Sqrt(varA*varB)
}
