package imagediff

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Pixel is the pure Go comparator.
//
// The candidate is resampled onto the reference rectangle with bilinear
// interpolation, the per-channel absolute difference is reduced to BT.601
// luminance with integer weights, and every pixel whose luminance exceeds
// PixelThreshold counts as changed. Identical inputs always produce
// identical results.
type Pixel struct {
	opts Options
}

// NewPixel creates a pixel comparator with the given options
func NewPixel(opts Options) *Pixel {
	return &Pixel{opts: opts}
}

// Compare implements Comparator
func (p *Pixel) Compare(reference, candidate image.Image) (*Result, error) {
	if err := validatePair(reference, candidate); err != nil {
		return nil, err
	}

	width, height := reference.Bounds().Dx(), reference.Bounds().Dy()
	ref := toRGBA(reference)
	cand := resample(candidate, width, height)

	threshold := int(p.opts.PixelThreshold)
	highlight := p.opts.HighlightColor

	var changed int
	var squares uint64
	for y := 0; y < height; y++ {
		refRow := ref.Pix[y*ref.Stride:]
		candRow := cand.Pix[y*cand.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			dr := absDiff(refRow[i], candRow[i])
			dg := absDiff(refRow[i+1], candRow[i+1])
			db := absDiff(refRow[i+2], candRow[i+2])

			squares += uint64(dr*dr + dg*dg + db*db)

			if luminance(dr, dg, db) > threshold {
				changed++
				// cand is our own copy, so the overlay is drawn in place
				candRow[i] = highlight.R
				candRow[i+1] = highlight.G
				candRow[i+2] = highlight.B
				candRow[i+3] = 255
			}
		}
	}

	mse := float64(squares) / float64(width*height*3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cand, &jpeg.Options{Quality: p.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding diff image: %w", err)
	}

	return newResult(p.opts, width, height, changed, mse, buf.Bytes()), nil
}

// toRGBA copies img into a new opaque RGBA whose origin is (0, 0). Alpha is
// dropped and the straight (non-premultiplied) colour kept, as a 3-channel
// decode would.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	for y := 0; y < b.Dy(); y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := x * 4
			row[i], row[i+1], row[i+2], row[i+3] = c.R, c.G, c.B, 255
		}
	}
	return dst
}

// resample returns an opaque width x height copy of img, scaled bilinearly
// when the size differs
func resample(img image.Image, width, height int) *image.RGBA {
	src := toRGBA(img)
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// luminance is the BT.601 weighting (0.299, 0.587, 0.114), rounded
func luminance(r, g, b int) int {
	return (299*r + 587*g + 114*b + 500) / 1000
}
