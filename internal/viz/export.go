package viz

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/dataset"
	"github.com/chinacui/medicalzoo/internal/metrics"
	"github.com/chinacui/medicalzoo/internal/model"
	"github.com/chinacui/medicalzoo/internal/nifti"
	"github.com/chinacui/medicalzoo/internal/volume"
)

// ErrUnsupportedChannels reports an input channel count with no stacking rule.
var ErrUnsupportedChannels = errors.New("viz: unsupported number of input channels")

// Preparer turns a loaded batch into model input and labels.
type Preparer interface {
	Prepare(b dataset.Batch) (input, target *tensor.Dense, err error)
}

// FullVolume is one whole-resolution subject: (D,H,W) modality volumes and
// the (D,H,W) label volume.
type FullVolume struct {
	Modalities []*tensor.Dense
	Target     *tensor.Dense
}

// ExportConfig holds what both export entry points share. Subvolume is the
// block fed to the model by VisualizeNoOverlap; Volume is the full (D,H,W)
// reassembled by VisualizeOffline.
type ExportConfig struct {
	SaveDir    string
	Classes    int
	InChannels int
	Subvolume  [3]int
	Volume     [3]int
	Affine     nifti.Affine
	Writer     metrics.Writer
}

// FigurePath is where the median-slice figure for epoch is saved.
func FigurePath(saveDir string, epoch int) string {
	return filepath.Join(saveDir, fmt.Sprintf("epoch__%04d.png", epoch))
}

// VolumePath is where the predicted volume for epoch is saved.
func VolumePath(saveDir string, epoch int) string {
	return filepath.Join(saveDir, fmt.Sprintf("Pred_volume_epoch_%d.nii.gz", epoch))
}

// subvolumeStacker cuts modalities into model inputs and reassembles the
// per-input outputs, concatenated on axis 0, into a (1,classes,D,H,W) volume.
type subvolumeStacker interface {
	stack(mods [][]float32, full, dim [3]int) ([]*tensor.Dense, error)
	assemble(out []float32, classes int, full, dim [3]int) (*tensor.Dense, error)
}

// wholeVolume feeds the first modality to the model in one piece.
type wholeVolume struct{}

func (wholeVolume) stack(mods [][]float32, full, _ [3]int) ([]*tensor.Dense, error) {
	return []*tensor.Dense{volume.New(mods[0], 1, 1, full[0], full[1], full[2])}, nil
}

func (wholeVolume) assemble(out []float32, classes int, full, _ [3]int) (*tensor.Dense, error) {
	if len(out) != classes*full[0]*full[1]*full[2] {
		return nil, errors.Wrapf(volume.ErrShape, "%d output elements for %d classes over %v", len(out), classes, full)
	}
	return volume.New(out, 1, classes, full[0], full[1], full[2]), nil
}

// tiledVolume cuts the first channels modalities into non-overlapping blocks
// and stacks them on the channel axis, one (1,channels,d0,d1,d2) input per
// block.
type tiledVolume struct {
	channels int
}

func (s tiledVolume) stack(mods [][]float32, full, dim [3]int) ([]*tensor.Dense, error) {
	tiles := make([][][]float32, s.channels)
	for c := 0; c < s.channels; c++ {
		blocks, err := volume.Tile(mods[c], full, dim)
		if err != nil {
			return nil, err
		}
		tiles[c] = blocks
	}
	blockSize := dim[0] * dim[1] * dim[2]
	inputs := make([]*tensor.Dense, len(tiles[0]))
	for b := range inputs {
		data := make([]float32, 0, s.channels*blockSize)
		for c := 0; c < s.channels; c++ {
			data = append(data, tiles[c][b]...)
		}
		inputs[b] = volume.New(data, 1, s.channels, dim[0], dim[1], dim[2])
	}
	return inputs, nil
}

func (s tiledVolume) assemble(out []float32, classes int, full, dim [3]int) (*tensor.Dense, error) {
	data, err := volume.Untile(out, classes, full, dim)
	if err != nil {
		return nil, err
	}
	return volume.New(data, 1, classes, full[0], full[1], full[2]), nil
}

var stackers = map[int]subvolumeStacker{
	1: wholeVolume{},
	2: tiledVolume{channels: 2},
	3: tiledVolume{channels: 3},
}

// VisualizeNoOverlap predicts full one subvolume at a time, stitches the
// predictions back together and exports the result for epoch.
func VisualizeNoOverlap(cfg ExportConfig, full FullVolume, m model.Model, epoch int) error {
	stacker, ok := stackers[cfg.InChannels]
	if !ok {
		return errors.Wrapf(ErrUnsupportedChannels, "%d", cfg.InChannels)
	}
	if len(full.Modalities) < cfg.InChannels {
		return errors.Errorf("viz: %d input channels requested, volume has %d modalities", cfg.InChannels, len(full.Modalities))
	}
	if full.Target == nil {
		return errors.New("viz: volume has no target")
	}
	dims, err := volume.Spatial(full.Target)
	if err != nil {
		return err
	}
	mods := make([][]float32, cfg.InChannels)
	for i := range mods {
		d, err := volume.Spatial(full.Modalities[i])
		if err != nil {
			return err
		}
		if d != dims {
			return errors.Wrapf(volume.ErrShape, "modality %d is %v, target is %v", i, d, dims)
		}
		if mods[i], err = volume.Float32s(full.Modalities[i]); err != nil {
			return err
		}
	}

	inputs, err := stacker.stack(mods, dims, cfg.Subvolume)
	if err != nil {
		return err
	}
	m.SetTraining(false)
	outputs := make([]*tensor.Dense, len(inputs))
	for i, in := range inputs {
		if outputs[i], err = m.Forward(in); err != nil {
			return errors.Wrapf(err, "predict subvolume %d", i)
		}
	}
	stacked, err := concatBatch(outputs)
	if err != nil {
		return err
	}
	raw, err := volume.Float32s(stacked)
	if err != nil {
		return err
	}
	pred, err := stacker.assemble(raw, cfg.Classes, dims, cfg.Subvolume)
	if err != nil {
		return err
	}
	truth, err := volume.Reshaped(full.Target, 1, dims[0], dims[1], dims[2])
	if err != nil {
		return err
	}
	log.Printf("viz: epoch=%d subvolumes=%d volume=%v", epoch, len(inputs), dims)
	return Export(cfg, pred, truth, epoch)
}

// VisualizeOffline predicts each persisted triple in order, treats the
// predictions as raster-ordered tiles of cfg.Volume and exports the
// reassembled volume for epoch.
func VisualizeOffline(cfg ExportConfig, triples []dataset.Triple, m model.Model, prep Preparer, epoch int) error {
	if len(triples) == 0 {
		return errors.New("viz: no triples to export")
	}
	m.SetTraining(false)
	var (
		outputs []*tensor.Dense
		labels  []*tensor.Dense
	)
	for i, tr := range triples {
		b, err := dataset.LoadTriple(tr)
		if err != nil {
			return errors.Wrapf(err, "triple %d", i)
		}
		input, target, err := prep.Prepare(b)
		if err != nil {
			return errors.Wrapf(err, "triple %d", i)
		}
		out, err := m.Forward(input)
		if err != nil {
			return errors.Wrapf(err, "predict triple %d", i)
		}
		outputs = append(outputs, out)
		labels = append(labels, target)
	}

	outStack, err := concatBatch(outputs)
	if err != nil {
		return err
	}
	labelStack, err := concatBatch(labels)
	if err != nil {
		return err
	}
	if outStack.Dims() != 5 {
		return errors.Wrapf(volume.ErrShape, "model output must be (B,C,d0,d1,d2), got %v", outStack.Shape())
	}
	classes := outStack.Shape()[1]
	tile, _ := volume.Spatial(outStack)
	full := cfg.Volume

	outData, err := volume.Float32s(outStack)
	if err != nil {
		return err
	}
	predData, err := volume.Untile(outData, classes, full, tile)
	if err != nil {
		return errors.Wrap(err, "reassemble prediction")
	}
	labelData, err := volume.Float32s(labelStack)
	if err != nil {
		return err
	}
	truthData, err := volume.Untile(labelData, 1, full, tile)
	if err != nil {
		return errors.Wrap(err, "reassemble labels")
	}
	pred := volume.New(predData, 1, classes, full[0], full[1], full[2])
	truth := volume.New(truthData, 1, full[0], full[1], full[2])
	log.Printf("viz: epoch=%d triples=%d volume=%v", epoch, len(triples), full)
	return Export(cfg, pred, truth, epoch)
}

// Export renders the median-slice figure of pred against truth and writes
// pred as a NIfTI volume, both named after epoch under cfg.SaveDir.
func Export(cfg ExportConfig, pred, truth *tensor.Dense, epoch int) error {
	if err := CreateMidSliceViews(pred, truth, epoch, cfg.Writer, FigurePath(cfg.SaveDir, epoch)); err != nil {
		return errors.Wrap(err, "mid-slice views")
	}
	if err := nifti.Save(VolumePath(cfg.SaveDir, epoch), pred, cfg.Affine); err != nil {
		return errors.Wrap(err, "save predicted volume")
	}
	return nil
}

func concatBatch(ts []*tensor.Dense) (*tensor.Dense, error) {
	if len(ts) == 0 {
		return nil, errors.New("viz: nothing to concatenate")
	}
	if len(ts) == 1 {
		return ts[0], nil
	}
	first, err := volume.AsFloat32(ts[0])
	if err != nil {
		return nil, err
	}
	rest := make([]*tensor.Dense, len(ts)-1)
	for i, t := range ts[1:] {
		if rest[i], err = volume.AsFloat32(t); err != nil {
			return nil, err
		}
	}
	out, err := first.Concat(0, rest...)
	if err != nil {
		return nil, errors.Wrap(err, "concatenate batch")
	}
	return out, nil
}
