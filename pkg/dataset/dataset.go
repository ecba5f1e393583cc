// Package dataset holds labelled image splits and the loaders that read them
// from MNIST IDX files, CSV exports or a deterministic synthetic generator.
package dataset

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when a split has a different number of images and labels
var ErrLengthMismatch = errors.New("images and labels have different lengths")

// Image is a row-major grid of pixel intensities
type Image struct {
	Rows int
	Cols int
	Pix  []float64
}

// NewImage allocates a zeroed rows x cols image
func NewImage(rows, cols int) Image {
	return Image{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
}

// At returns the intensity at row r, column c
func (im Image) At(r, c int) float64 {
	return im.Pix[r*im.Cols+c]
}

// Set writes the intensity at row r, column c
func (im Image) Set(r, c int, v float64) {
	im.Pix[r*im.Cols+c] = v
}

// Split is an index-aligned pair of images and integer class labels
type Split struct {
	Images []Image
	Labels []int
}

// Len returns the number of samples
func (s Split) Len() int {
	return len(s.Labels)
}

// Validate checks the length invariant and that every image's pixel buffer
// matches its declared shape
func (s Split) Validate() error {
	if len(s.Images) != len(s.Labels) {
		return fmt.Errorf("%w: %d images, %d labels", ErrLengthMismatch, len(s.Images), len(s.Labels))
	}
	for i, im := range s.Images {
		if len(im.Pix) != im.Rows*im.Cols {
			return fmt.Errorf("image %d: pixel buffer has %d values, shape is %dx%d", i, len(im.Pix), im.Rows, im.Cols)
		}
	}
	return nil
}

// Shape returns the dimensions of the first image, or zeros for an empty split
func (s Split) Shape() (rows, cols int) {
	if len(s.Images) == 0 {
		return 0, 0
	}
	return s.Images[0].Rows, s.Images[0].Cols
}
