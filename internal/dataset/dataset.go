package dataset

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// Batch is one loader step: modality volumes shaped (B,1,D,H,W) and a label
// volume shaped (B,D,H,W).
type Batch struct {
	Modalities []*tensor.Dense
	Target     *tensor.Dense
}

// Loader yields batches by index, in order.
type Loader interface {
	Len() int
	Batch(i int) (Batch, error)
}

// Memory is a Loader over batches held in memory.
type Memory []Batch

// Len implements Loader.
func (m Memory) Len() int { return len(m) }

// Batch implements Loader.
func (m Memory) Batch(i int) (Batch, error) {
	if i < 0 || i >= len(m) {
		return Batch{}, errors.Errorf("dataset: batch %d out of range [0,%d)", i, len(m))
	}
	return m[i], nil
}

// Triple names the persisted arrays of one sample: two modalities and labels.
type Triple struct {
	T1, T2, Seg string
}

// SampleBatch lifts single (D,H,W) volumes to a batch of one.
func SampleBatch(t1, t2, seg *tensor.Dense) (Batch, error) {
	var b Batch
	for _, m := range []*tensor.Dense{t1, t2} {
		dims, err := volume.Spatial(m)
		if err != nil {
			return Batch{}, err
		}
		lifted, err := volume.Reshaped(m, 1, 1, dims[0], dims[1], dims[2])
		if err != nil {
			return Batch{}, err
		}
		b.Modalities = append(b.Modalities, lifted)
	}
	dims, err := volume.Spatial(seg)
	if err != nil {
		return Batch{}, err
	}
	b.Target, err = volume.Reshaped(seg, 1, dims[0], dims[1], dims[2])
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}
