package dataset

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// LoadNpy reads a .npy array as a float32 Dense.
func LoadNpy(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open npy")
	}
	defer f.Close()
	t, err := ReadNpy(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return t, nil
}

// ReadNpy decodes a .npy stream as a float32 Dense.
func ReadNpy(r io.Reader) (*tensor.Dense, error) {
	t := new(tensor.Dense)
	if err := t.ReadNpy(r); err != nil {
		return nil, errors.Wrap(err, "decode npy")
	}
	return volume.AsFloat32(t)
}

// LoadTriple reads the three arrays of tr as a batch of one.
func LoadTriple(tr Triple) (Batch, error) {
	t1, err := LoadNpy(tr.T1)
	if err != nil {
		return Batch{}, err
	}
	t2, err := LoadNpy(tr.T2)
	if err != nil {
		return Batch{}, err
	}
	seg, err := LoadNpy(tr.Seg)
	if err != nil {
		return Batch{}, err
	}
	return SampleBatch(t1, t2, seg)
}

// Triples is a Loader reading one triple from disk per batch.
type Triples []Triple

// Len implements Loader.
func (ts Triples) Len() int { return len(ts) }

// Batch implements Loader.
func (ts Triples) Batch(i int) (Batch, error) {
	if i < 0 || i >= len(ts) {
		return Batch{}, errors.Errorf("dataset: batch %d out of range [0,%d)", i, len(ts))
	}
	return LoadTriple(ts[i])
}
