//go:build !gocv
// +build !gocv

package imagediff

import (
	"errors"
	"image"
)

// OpenCV is unavailable without the gocv build tag
type OpenCV struct{}

// NewOpenCV returns an error if the binary was built without the gocv tag
func NewOpenCV(opts Options) (*OpenCV, error) {
	_ = opts
	return nil, errors.New("opencv comparator requires the gocv build tag")
}

// Compare returns an error if the binary was built without the gocv tag
func (o *OpenCV) Compare(reference, candidate image.Image) (*Result, error) {
	_ = reference
	_ = candidate
	return nil, errors.New("gocv build tag is not enabled")
}
