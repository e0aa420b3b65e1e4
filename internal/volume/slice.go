package volume

import "github.com/pkg/errors"

// Slice is a 2D cross-section of an integer label volume, row-major.
type Slice struct {
	Rows, Cols int
	Data       []int
}

// At returns the value at row r, column c.
func (s Slice) At(r, c int) int {
	return s.Data[r*s.Cols+c]
}

// SameShape reports whether s and o have identical dimensions.
func (s Slice) SameShape(o Slice) bool {
	return s.Rows == o.Rows && s.Cols == o.Cols
}

// Transpose swaps rows and columns.
func (s Slice) Transpose() Slice {
	out := Slice{Rows: s.Cols, Cols: s.Rows, Data: make([]int, len(s.Data))}
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			out.Data[c*out.Cols+r] = s.Data[r*s.Cols+c]
		}
	}
	return out
}

// Bounds returns the smallest and largest value in s.
func (s Slice) Bounds() (lo, hi int) {
	if len(s.Data) == 0 {
		return 0, 0
	}
	lo, hi = s.Data[0], s.Data[0]
	for _, v := range s.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// AxisSlice cuts the plane at index along axis (0, 1 or 2) out of a row-major
// (D,H,W) volume. Axis 0 yields (H,W), axis 1 (D,W) and axis 2 (D,H).
func AxisSlice(data []int, dims [3]int, axis, index int) (Slice, error) {
	if len(data) != dims[0]*dims[1]*dims[2] {
		return Slice{}, errors.Wrapf(ErrShape, "volume of %d elements does not match %v", len(data), dims)
	}
	if axis < 0 || axis > 2 {
		return Slice{}, errors.Errorf("volume: axis %d out of range", axis)
	}
	if index < 0 || index >= dims[axis] {
		return Slice{}, errors.Errorf("volume: index %d out of range for axis %d of size %d", index, axis, dims[axis])
	}
	d, h, w := dims[0], dims[1], dims[2]
	switch axis {
	case 0:
		out := Slice{Rows: h, Cols: w, Data: make([]int, h*w)}
		copy(out.Data, data[index*h*w:(index+1)*h*w])
		return out, nil
	case 1:
		out := Slice{Rows: d, Cols: w, Data: make([]int, d*w)}
		for z := 0; z < d; z++ {
			copy(out.Data[z*w:(z+1)*w], data[z*h*w+index*w:z*h*w+index*w+w])
		}
		return out, nil
	default:
		out := Slice{Rows: d, Cols: h, Data: make([]int, d*h)}
		for z := 0; z < d; z++ {
			for y := 0; y < h; y++ {
				out.Data[z*h+y] = data[z*h*w+y*w+index]
			}
		}
		return out, nil
	}
}

// MidSlices returns the planes through the middle index dims[i]/2 of each axis.
func MidSlices(data []int, dims [3]int) ([3]Slice, error) {
	var out [3]Slice
	for axis := 0; axis < 3; axis++ {
		s, err := AxisSlice(data, dims, axis, dims[axis]/2)
		if err != nil {
			return out, err
		}
		out[axis] = s
	}
	return out, nil
}
