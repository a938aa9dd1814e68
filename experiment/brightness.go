package experiment

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidInput is returned when the evaluator cannot score an image.
var ErrInvalidInput = errors.New("invalid input image")

// Evaluator scores image brightness on a sparse pixel grid.
type Evaluator struct {
	Stride int // sample every Stride-th pixel along both axes
}

// NewEvaluator returns an Evaluator sampling with the given stride.
func NewEvaluator(stride int) Evaluator {
	return Evaluator{Stride: stride}
}

// Score returns the mean over sampled pixels of (R+G+B)/3, rounded up.
// Channels are 8-bit. This is not perceptual luminance.
func (e Evaluator) Score(img image.Image) (float64, error) {
	if img == nil {
		return 0, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if e.Stride <= 0 {
		return 0, fmt.Errorf("%w: stride must be > 0, got %d", ErrInvalidInput, e.Stride)
	}
	b := img.Bounds()
	var sum float64
	samples := 0
	for x := b.Min.X; x < b.Max.X; x += e.Stride {
		for y := b.Min.Y; y < b.Max.Y; y += e.Stride {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += float64(r>>8+g>>8+bl>>8) / 3.0
			samples++
		}
	}
	if samples == 0 {
		return 0, fmt.Errorf("%w: %dx%d image has no pixels to sample", ErrInvalidInput, b.Dx(), b.Dy())
	}
	return math.Ceil(sum / float64(samples)), nil
}

// IsNight reports score < threshold, along with the score itself.
// A score equal to the threshold is day.
func (e Evaluator) IsNight(img image.Image, threshold float64) (bool, float64, error) {
	score, err := e.Score(img)
	if err != nil {
		return false, 0, err
	}
	return score < threshold, score, nil
}
