// Package nifti writes single-file NIfTI-1 volumes.
package nifti

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

const (
	headerSize   = 348
	voxOffset    = 352
	dtFloat32    = 16
	maxDims      = 7
	sformScanner = 1
	unitsMM      = 2
)

// Affine maps voxel indices to scanner coordinates.
type Affine [4][4]float64

// Identity is the affine of a volume with 1mm isotropic voxels at the origin.
func Identity() Affine {
	return Affine{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Header is the subset of the NIfTI-1 header this package fills in.
type Header struct {
	Dim    [8]int16
	Pixdim [8]float32
	Affine Affine
}

// NewHeader describes a float32 volume of the given shape.
func NewHeader(shape []int, affine Affine) (Header, error) {
	var h Header
	if len(shape) == 0 || len(shape) > maxDims {
		return h, errors.Wrapf(volume.ErrShape, "nifti supports 1 to %d dims, got %v", maxDims, shape)
	}
	h.Dim[0] = int16(len(shape))
	for i, d := range shape {
		if d <= 0 || d > math.MaxInt16 {
			return h, errors.Wrapf(volume.ErrShape, "nifti dim %d out of range in %v", d, shape)
		}
		h.Dim[i+1] = int16(d)
	}
	for i := range h.Dim[1:] {
		if h.Dim[i+1] == 0 {
			h.Dim[i+1] = 1
		}
	}
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		col := math.Sqrt(affine[0][i]*affine[0][i] + affine[1][i]*affine[1][i] + affine[2][i]*affine[2][i])
		h.Pixdim[i+1] = float32(col)
	}
	for i := 4; i < 8; i++ {
		h.Pixdim[i] = 1
	}
	h.Affine = affine
	return h, nil
}

// MarshalBinary encodes h as the 348-byte header plus an empty extension.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, voxOffset)
	le := binary.LittleEndian
	le.PutUint32(b[0:], headerSize)
	b[38] = 'r' // regular
	for i, d := range h.Dim {
		le.PutUint16(b[40+2*i:], uint16(d))
	}
	le.PutUint16(b[70:], dtFloat32)
	le.PutUint16(b[72:], 32)
	for i, p := range h.Pixdim {
		le.PutUint32(b[76+4*i:], math.Float32bits(p))
	}
	le.PutUint32(b[108:], math.Float32bits(voxOffset))
	le.PutUint32(b[112:], math.Float32bits(1)) // scl_slope
	b[123] = unitsMM
	le.PutUint16(b[254:], sformScanner)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			le.PutUint32(b[280+16*row+4*col:], math.Float32bits(float32(h.Affine[row][col])))
		}
	}
	copy(b[344:], "n+1\x00")
	return b, nil
}

// Save writes t as a gzip-compressed NIfTI-1 file. Voxels are stored with the
// first axis varying fastest, as the format requires.
func Save(path string, t *tensor.Dense, affine Affine) error {
	data, err := volume.Float32s(t)
	if err != nil {
		return err
	}
	shape := []int(t.Shape().Clone())
	hdr, err := NewHeader(shape, affine)
	if err != nil {
		return err
	}
	raw, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create nifti file")
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	zw := gzip.NewWriter(bw)
	if _, err := zw.Write(raw); err != nil {
		return errors.Wrap(err, "write nifti header")
	}

	buf := make([]byte, 4)
	var werr error
	forEachColumnMajor(shape, func(rowMajor int) {
		if werr != nil {
			return
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(data[rowMajor]))
		_, werr = zw.Write(buf)
	})
	if werr != nil {
		return errors.Wrap(werr, "write nifti voxels")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "close gzip stream")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush nifti file")
	}
	return f.Close()
}

// forEachColumnMajor visits every element of a row-major array of the given
// shape in column-major order, passing its row-major offset.
func forEachColumnMajor(shape []int, fn func(int)) {
	n := volume.Size(shape)
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	idx := make([]int, len(shape))
	offset := 0
	for k := 0; k < n; k++ {
		fn(offset)
		for a := 0; a < len(shape); a++ {
			idx[a]++
			offset += strides[a]
			if idx[a] < shape[a] {
				break
			}
			offset -= idx[a] * strides[a]
			idx[a] = 0
		}
	}
}
