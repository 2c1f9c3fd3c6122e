package imagediff

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime/debug"
)

// ErrInvalidInput is returned for undecodable, missing or zero-area images
var ErrInvalidInput = errors.New("invalid input")

// Verdict is the acceptance label of a comparison
type Verdict string

const (
	LabelGood      Verdict = "good"
	LabelDefective Verdict = "defective"
)

// Options controls thresholds and rendering of a comparison.
// PixelThreshold and AcceptanceThreshold are calibrated together with the
// linear score mapping; changing one without the others skews every verdict.
type Options struct {
	PixelThreshold      uint8      // a pixel is changed iff its difference intensity exceeds this
	AcceptanceThreshold float64    // scores below this are defective
	HighlightColor      color.RGBA // overlay color for changed pixels
	JPEGQuality         int        // quality of the encoded diff image
}

// DefaultOptions returns the canonical configuration
func DefaultOptions() Options {
	return Options{
		PixelThreshold:      30,
		AcceptanceThreshold: 0.9,
		HighlightColor:      color.RGBA{R: 255, A: 255},
		JPEGQuality:         90,
	}
}

// Result is the outcome of a single image comparison
type Result struct {
	Score          float64 `json:"score"`
	DiffPercentage float64 `json:"diff_percentage"`
	MSE            float64 `json:"mse"`
	Label          Verdict `json:"label"`
	ChangedPixels  int     `json:"changed_pixels"`
	TotalPixels    int     `json:"total_pixels"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Summary        string  `json:"changes_summary"`
	DiffImage      []byte  `json:"diff_image_base64"` // JPEG, base64 in JSON
}

// Comparator compares a candidate image against a reference image
type Comparator interface {
	Compare(reference, candidate image.Image) (*Result, error)
}

// newResult derives the score, label and summary from the raw pixel counts
func newResult(opts Options, width, height, changed int, mse float64, diffImage []byte) *Result {
	total := width * height
	diffPercentage := 100 * float64(changed) / float64(total)
	score := clamp(1-diffPercentage/100, 0, 1)

	label := LabelGood
	if score < opts.AcceptanceThreshold {
		label = LabelDefective
	}

	return &Result{
		Score:          score,
		DiffPercentage: diffPercentage,
		MSE:            mse,
		Label:          label,
		ChangedPixels:  changed,
		TotalPixels:    total,
		Width:          width,
		Height:         height,
		Summary:        fmt.Sprintf("Visual difference detected: %.2f%% pixel variance.", diffPercentage),
		DiffImage:      diffImage,
	}
}

// validatePair rejects absent and zero-area images
func validatePair(reference, candidate image.Image) error {
	if reference == nil || candidate == nil {
		return fmt.Errorf("%w: both reference and candidate images are required", ErrInvalidInput)
	}
	if reference.Bounds().Empty() {
		return fmt.Errorf("%w: reference image has zero area", ErrInvalidInput)
	}
	if candidate.Bounds().Empty() {
		return fmt.Errorf("%w: candidate image has zero area", ErrInvalidInput)
	}
	return nil
}

// Run calls c.Compare and converts a panic inside the comparator into an error
func Run(c Comparator, reference, candidate image.Image) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("comparison panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return c.Compare(reference, candidate)
}

// CompareBytes decodes both images and compares them
func CompareBytes(c Comparator, reference, candidate []byte) (*Result, error) {
	ref, err := Decode(reference, "")
	if err != nil {
		return nil, fmt.Errorf("reference image: %w", err)
	}
	cand, err := Decode(candidate, "")
	if err != nil {
		return nil, fmt.Errorf("candidate image: %w", err)
	}
	return Run(c, ref, cand)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
