package volume

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShape reports a tensor whose shape does not fit the requested operation.
var ErrShape = errors.New("volume: unexpected shape")

// New wraps data in a float32 Dense of the given shape.
func New(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Zeros allocates a float32 Dense of the given shape.
func Zeros(shape ...int) *tensor.Dense {
	return New(make([]float32, Size(shape)), shape...)
}

// Size is the element count of shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Float32s returns the elements of t as float32. Float32 backings are
// returned as is, any other numeric backing is converted into a copy.
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, errors.New("volume: nil tensor")
	}
	switch data := t.Data().(type) {
	case []float32:
		return data, nil
	case []float64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out, nil
	case []int:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out, nil
	case []int64:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out, nil
	case []int32:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out, nil
	case []uint8:
		out := make([]float32, len(data))
		for i, v := range data {
			out[i] = float32(v)
		}
		return out, nil
	case float32:
		return []float32{data}, nil
	default:
		return nil, errors.Errorf("volume: unsupported dtype %v", t.Dtype())
	}
}

// Ints truncates the elements of t to integer labels.
func Ints(t *tensor.Dense) ([]int, error) {
	if t == nil {
		return nil, errors.New("volume: nil tensor")
	}
	if data, ok := t.Data().([]int); ok {
		return data, nil
	}
	f, err := Float32s(t)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(f))
	for i, v := range f {
		out[i] = int(v)
	}
	return out, nil
}

// AsFloat32 returns t itself when it already holds float32 data, otherwise a
// float32 copy with the same shape.
func AsFloat32(t *tensor.Dense) (*tensor.Dense, error) {
	if _, ok := t.Data().([]float32); ok {
		return t, nil
	}
	data, err := Float32s(t)
	if err != nil {
		return nil, err
	}
	return New(data, t.Shape().Clone()...), nil
}

// Reshaped returns a float32 Dense over the same elements as t with a new shape.
func Reshaped(t *tensor.Dense, shape ...int) (*tensor.Dense, error) {
	data, err := Float32s(t)
	if err != nil {
		return nil, err
	}
	if len(data) != Size(shape) {
		return nil, errors.Wrapf(ErrShape, "cannot view %v as %v", t.Shape(), shape)
	}
	return New(data, shape...), nil
}

// Spatial returns the trailing three dimensions of t.
func Spatial(t *tensor.Dense) ([3]int, error) {
	shape := t.Shape()
	if len(shape) < 3 {
		return [3]int{}, errors.Wrapf(ErrShape, "need at least 3 dims, got %v", shape)
	}
	n := len(shape)
	return [3]int{shape[n-3], shape[n-2], shape[n-1]}, nil
}

// ArgmaxClasses collapses a (B,C,D,H,W) score tensor to a (B,D,H,W) label map
// holding the index of the highest scoring class per voxel.
func ArgmaxClasses(scores *tensor.Dense) (*tensor.Dense, error) {
	if scores.Dims() != 5 {
		return nil, errors.Wrapf(ErrShape, "argmax wants (B,C,D,H,W), got %v", scores.Shape())
	}
	labels, err := scores.Argmax(1)
	if err != nil {
		return nil, errors.Wrap(err, "argmax")
	}
	return labels, nil
}
