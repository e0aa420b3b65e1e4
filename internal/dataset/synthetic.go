package dataset

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// Synthetic generates phantom head volumes: nested shells labelled
// air, csf, gm and wm from the outside in, with two noisy modalities whose
// intensity tracks the label.
type Synthetic struct {
	batches []Batch
}

// NewSynthetic builds n deterministic batches of size 1 and spatial shape dims.
func NewSynthetic(n int, dims [3]int, seed int64) (*Synthetic, error) {
	if n <= 0 {
		return nil, errors.Errorf("synthetic: batch count must be > 0 (got %d)", n)
	}
	for _, d := range dims {
		if d <= 0 {
			return nil, errors.Errorf("synthetic: invalid dims %v", dims)
		}
	}
	rng := rand.New(rand.NewSource(seed))
	s := &Synthetic{batches: make([]Batch, 0, n)}
	for i := 0; i < n; i++ {
		t1, t2, seg := phantom(dims, rng)
		b, err := SampleBatch(
			volume.New(t1, dims[0], dims[1], dims[2]),
			volume.New(t2, dims[0], dims[1], dims[2]),
			volume.New(seg, dims[0], dims[1], dims[2]),
		)
		if err != nil {
			return nil, err
		}
		s.batches = append(s.batches, b)
	}
	return s, nil
}

// Len implements Loader.
func (s *Synthetic) Len() int { return len(s.batches) }

// Batch implements Loader.
func (s *Synthetic) Batch(i int) (Batch, error) {
	return Memory(s.batches).Batch(i)
}

func phantom(dims [3]int, rng *rand.Rand) (t1, t2, seg []float32) {
	size := dims[0] * dims[1] * dims[2]
	t1 = make([]float32, size)
	t2 = make([]float32, size)
	seg = make([]float32, size)
	scale := 0.85 + 0.1*rng.Float64()
	i := 0
	for z := 0; z < dims[0]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[2]; x++ {
				r := math.Sqrt(sq(norm(z, dims[0])) + sq(norm(y, dims[1])) + sq(norm(x, dims[2])))
				r /= scale
				label := 0
				switch {
				case r < 0.4:
					label = 3
				case r < 0.6:
					label = 2
				case r < 0.8:
					label = 1
				}
				seg[i] = float32(label)
				t1[i] = float32(float64(label)/3 + 0.05*rng.NormFloat64())
				t2[i] = float32(1 - float64(label)/3 + 0.05*rng.NormFloat64())
				i++
			}
		}
	}
	return t1, t2, seg
}

// norm maps index i of n onto [-1,1].
func norm(i, n int) float64 {
	if n == 1 {
		return 0
	}
	return 2*float64(i)/float64(n-1) - 1
}

func sq(v float64) float64 { return v * v }
