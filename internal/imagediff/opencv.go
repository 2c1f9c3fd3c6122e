//go:build gocv
// +build gocv

package imagediff

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenCV runs the comparison through OpenCV. Resampling uses INTER_LINEAR
// and intensity uses OpenCV's BGR2GRAY weights, so results can differ from
// Pixel by rounding on resized inputs.
type OpenCV struct {
	opts Options
}

// NewOpenCV creates an OpenCV backed comparator
func NewOpenCV(opts Options) (*OpenCV, error) {
	return &OpenCV{opts: opts}, nil
}

// Compare implements Comparator
func (o *OpenCV) Compare(reference, candidate image.Image) (*Result, error) {
	if err := validatePair(reference, candidate); err != nil {
		return nil, err
	}

	refMat, err := gocv.ImageToMatRGB(toRGBA(reference))
	if err != nil {
		return nil, fmt.Errorf("%w: converting reference: %w", ErrInvalidInput, err)
	}
	defer refMat.Close()

	candMat, err := gocv.ImageToMatRGB(toRGBA(candidate))
	if err != nil {
		return nil, fmt.Errorf("%w: converting candidate: %w", ErrInvalidInput, err)
	}
	defer func() { candMat.Close() }()

	width, height := refMat.Cols(), refMat.Rows()
	if candMat.Cols() != width || candMat.Rows() != height {
		resized := gocv.NewMat()
		gocv.Resize(candMat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
		candMat.Close()
		candMat = resized
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(refMat, candMat, &diff)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, float32(o.opts.PixelThreshold), 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(mask)

	var squares uint64
	for _, v := range diff.ToBytes() {
		squares += uint64(v) * uint64(v)
	}
	mse := float64(squares) / float64(width*height*3)

	highlight := candMat.Clone()
	defer highlight.Close()

	c := o.opts.HighlightColor
	overlay := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0), height, width, gocv.MatTypeCV8UC3)
	defer overlay.Close()
	overlay.CopyToWithMask(&highlight, mask)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, highlight, []int{gocv.IMWriteJpegQuality, o.opts.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encoding diff image: %w", err)
	}
	defer buf.Close()
	encoded := append([]byte(nil), buf.GetBytes()...)

	return newResult(o.opts, width, height, changed, mse, encoded), nil
}
