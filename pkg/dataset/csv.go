package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a split from a file of "<label>,p0,p1,...,pN" rows.
// Images are assumed square, so N+1 must be a perfect square.
func LoadCSV(path string) (Split, error) {
	f, err := os.Open(path)
	if err != nil {
		return Split{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	split, err := ReadCSV(f)
	if err != nil {
		return Split{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return split, nil
}

// ReadCSV decodes "<label>,pixels..." rows. A leading header row whose first
// field is not an integer is skipped.
func ReadCSV(r io.Reader) (Split, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	var split Split
	side := 0
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Split{}, fmt.Errorf("line %d: %w", line, err)
		}

		label, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return Split{}, fmt.Errorf("line %d: bad label %q: %w", line, record[0], err)
		}

		pixels := record[1:]
		if side == 0 {
			side = int(math.Sqrt(float64(len(pixels))))
			if side == 0 || side*side != len(pixels) {
				return Split{}, fmt.Errorf("line %d: %d pixels is not a square image", line, len(pixels))
			}
		}

		im := NewImage(side, side)
		if len(pixels) != len(im.Pix) {
			return Split{}, fmt.Errorf("line %d: expected %d pixels, got %d", line, len(im.Pix), len(pixels))
		}
		for i, p := range pixels {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Split{}, fmt.Errorf("line %d: bad pixel %d %q: %w", line, i, p, err)
			}
			im.Pix[i] = v
		}

		split.Images = append(split.Images, im)
		split.Labels = append(split.Labels, label)
	}
	return split, nil
}
