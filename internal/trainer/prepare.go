package trainer

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/dataset"
	"github.com/chinacui/medicalzoo/internal/volume"
)

// InputPreparer turns a raw batch into the model input and the label volume.
type InputPreparer interface {
	Prepare(b dataset.Batch) (input, target *tensor.Dense, err error)
}

// ChannelPreparer stacks the first InChannels modalities along the channel
// axis, producing a (B,InChannels,D,H,W) input.
type ChannelPreparer struct {
	InChannels int
}

// Prepare implements InputPreparer.
func (p ChannelPreparer) Prepare(b dataset.Batch) (*tensor.Dense, *tensor.Dense, error) {
	if p.InChannels < 1 || p.InChannels > len(b.Modalities) {
		return nil, nil, errors.Errorf("prepare: %d input channels requested, batch has %d modalities", p.InChannels, len(b.Modalities))
	}
	if b.Target == nil {
		return nil, nil, errors.New("prepare: batch has no target")
	}
	mods := make([]*tensor.Dense, p.InChannels)
	for i := range mods {
		m, err := volume.AsFloat32(b.Modalities[i])
		if err != nil {
			return nil, nil, err
		}
		if m.Dims() != 5 || m.Shape()[1] != 1 {
			return nil, nil, errors.Wrapf(volume.ErrShape, "prepare: modality %d must be (B,1,D,H,W), got %v", i, m.Shape())
		}
		mods[i] = m
	}
	input := mods[0]
	if len(mods) > 1 {
		var err error
		input, err = mods[0].Concat(1, mods[1:]...)
		if err != nil {
			return nil, nil, errors.Wrap(err, "prepare: stack modalities")
		}
	}
	target, err := volume.AsFloat32(b.Target)
	if err != nil {
		return nil, nil, err
	}
	return input, target, nil
}
