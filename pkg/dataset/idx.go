package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	idxImagesMagic uint32 = 0x00000803
	idxLabelsMagic uint32 = 0x00000801

	// headers are untrusted, so slices grow as records arrive past this count
	idxPreallocLimit = 1 << 16
	idxMaxPixels     = 1 << 24
)

// LoadIDX reads an MNIST-style split from an images file and a labels file.
// Both files may be gzip compressed; compression is detected from the content.
func LoadIDX(imagesPath, labelsPath string) (Split, error) {
	images, err := readIDXFile(imagesPath, ReadIDXImages)
	if err != nil {
		return Split{}, err
	}
	labels, err := readIDXFile(labelsPath, ReadIDXLabels)
	if err != nil {
		return Split{}, err
	}

	split := Split{Images: images, Labels: labels}
	if err := split.Validate(); err != nil {
		return Split{}, fmt.Errorf("failed to pair %s with %s: %w", imagesPath, labelsPath, err)
	}
	return split, nil
}

func readIDXFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := maybeGunzip(bufio.NewReader(f))
	if err != nil {
		return zero, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}

	v, err := read(r)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return v, nil
}

func maybeGunzip(r *bufio.Reader) (io.Reader, error) {
	head, err := r.Peek(2)
	if err != nil {
		return r, nil
	}
	if bytes.Equal(head, []byte{0x1f, 0x8b}) {
		return gzip.NewReader(r)
	}
	return r, nil
}

// ReadIDXImages decodes an idx3-ubyte image stream. Pixels keep their raw 0-255 values.
func ReadIDXImages(r io.Reader) ([]Image, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if header[0] != idxImagesMagic {
		return nil, fmt.Errorf("bad image magic 0x%08x", header[0])
	}

	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if rows == 0 || cols == 0 || rows > idxMaxPixels/cols {
		return nil, fmt.Errorf("unsupported image shape %dx%d", rows, cols)
	}
	buf := make([]byte, rows*cols)
	images := make([]Image, 0, min(count, idxPreallocLimit))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("failed to read image %d of %d: %w", i, count, err)
		}
		im := NewImage(rows, cols)
		for j, b := range buf {
			im.Pix[j] = float64(b)
		}
		images = append(images, im)
	}
	return images, nil
}

// ReadIDXLabels decodes an idx1-ubyte label stream
func ReadIDXLabels(r io.Reader) ([]int, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read label header: %w", err)
	}
	if header[0] != idxLabelsMagic {
		return nil, fmt.Errorf("bad label magic 0x%08x", header[0])
	}

	buf, err := io.ReadAll(io.LimitReader(r, int64(header[1])))
	if err != nil {
		return nil, fmt.Errorf("failed to read %d labels: %w", header[1], err)
	}
	if len(buf) != int(header[1]) {
		return nil, fmt.Errorf("failed to read %d labels: %w after %d", header[1], io.ErrUnexpectedEOF, len(buf))
	}
	labels := make([]int, len(buf))
	for i, b := range buf {
		labels[i] = int(b)
	}
	return labels, nil
}

// WriteIDX encodes a split as an idx3 image stream and an idx1 label stream.
// All images must share the shape of the first one.
func WriteIDX(images, labels io.Writer, s Split) error {
	if err := s.Validate(); err != nil {
		return err
	}
	rows, cols := s.Shape()

	header := [4]uint32{idxImagesMagic, uint32(len(s.Images)), uint32(rows), uint32(cols)}
	if err := binary.Write(images, binary.BigEndian, header); err != nil {
		return fmt.Errorf("failed to write image header: %w", err)
	}
	buf := make([]byte, rows*cols)
	for i, im := range s.Images {
		if im.Rows != rows || im.Cols != cols {
			return fmt.Errorf("image %d is %dx%d, expected %dx%d", i, im.Rows, im.Cols, rows, cols)
		}
		for j, v := range im.Pix {
			buf[j] = byte(clampByte(v))
		}
		if _, err := images.Write(buf); err != nil {
			return fmt.Errorf("failed to write image %d: %w", i, err)
		}
	}

	if err := binary.Write(labels, binary.BigEndian, [2]uint32{idxLabelsMagic, uint32(len(s.Labels))}); err != nil {
		return fmt.Errorf("failed to write label header: %w", err)
	}
	lbuf := make([]byte, len(s.Labels))
	for i, l := range s.Labels {
		if l < 0 || l > 255 {
			return fmt.Errorf("label %d at index %d does not fit in a byte", l, i)
		}
		lbuf[i] = byte(l)
	}
	if _, err := labels.Write(lbuf); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}

func clampByte(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
