package loss

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// NumClasses is the number of tissue classes scored per batch.
const NumClasses = 4

// Class names in score order.
var ClassNames = [NumClasses]string{"air", "csf", "gm", "wm"}

// ClassScores holds one Dice coefficient per class ordered air, csf, gm, wm.
type ClassScores [NumClasses]float64

// Result is what a Criterion reports for a single batch. Grad is
// dLoss/dOutput with the shape of the model output; criteria used only for
// evaluation may leave it nil.
type Result struct {
	Loss   float64
	Scores ClassScores
	Grad   *tensor.Dense
}

// Criterion scores a model output against a label volume.
type Criterion interface {
	Compute(output, target *tensor.Dense) (Result, error)
}

// Dice is a soft multi-class Dice loss over (B,C,D,H,W) probabilities and a
// (B,D,H,W) integer label volume. Loss is 1 minus the mean class Dice.
type Dice struct {
	Epsilon float64
}

// NewDice returns a Dice criterion with the usual smoothing term.
func NewDice() *Dice {
	return &Dice{Epsilon: 1e-5}
}

// Compute implements Criterion.
func (d *Dice) Compute(output, target *tensor.Dense) (Result, error) {
	shape := output.Shape()
	if len(shape) != 5 || shape[1] != NumClasses {
		return Result{}, errors.Wrapf(volume.ErrShape, "dice wants (B,%d,D,H,W) output, got %v", NumClasses, shape)
	}
	batch, classes := shape[0], shape[1]
	voxels := shape[2] * shape[3] * shape[4]
	if target.Shape().TotalSize() != batch*voxels {
		return Result{}, errors.Wrapf(volume.ErrShape, "target %v does not match output %v", target.Shape(), shape)
	}
	probs, err := volume.Float32s(output)
	if err != nil {
		return Result{}, err
	}
	labels, err := volume.Ints(target)
	if err != nil {
		return Result{}, err
	}

	var inter, psum, gsum [NumClasses]float64
	for b := 0; b < batch; b++ {
		for c := 0; c < classes; c++ {
			base := (b*classes + c) * voxels
			for v := 0; v < voxels; v++ {
				p := float64(probs[base+v])
				psum[c] += p
				if labels[b*voxels+v] == c {
					inter[c] += p
					gsum[c]++
				}
			}
		}
	}

	res := Result{}
	var dice, denom [NumClasses]float64
	mean := 0.0
	for c := 0; c < classes; c++ {
		denom[c] = psum[c] + gsum[c] + d.Epsilon
		dice[c] = (2*inter[c] + d.Epsilon) / denom[c]
		res.Scores[c] = dice[c]
		mean += dice[c]
	}
	res.Loss = 1 - mean/float64(classes)

	grad := make([]float32, len(probs))
	for b := 0; b < batch; b++ {
		for c := 0; c < classes; c++ {
			base := (b*classes + c) * voxels
			for v := 0; v < voxels; v++ {
				g := 0.0
				if labels[b*voxels+v] == c {
					g = 1
				}
				dDice := (2*g*denom[c] - (2*inter[c] + d.Epsilon)) / (denom[c] * denom[c])
				grad[base+v] = float32(-dDice / float64(classes))
			}
		}
	}
	res.Grad = volume.New(grad, shape.Clone()...)
	return res, nil
}
