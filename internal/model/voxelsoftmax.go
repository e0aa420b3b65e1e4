package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// VoxelSoftmax is a 1x1x1 convolution followed by a softmax over classes. It
// is the smallest model that trains against the Dice criterion.
type VoxelSoftmax struct {
	inChannels int
	classes    int
	weight     *Param
	bias       *Param
	training   bool

	lastInput []float32
	lastProbs []float32
	lastShape tensor.Shape
}

// NewVoxelSoftmax constructs the model with random initialization.
func NewVoxelSoftmax(inChannels, classes int, seed int64) *VoxelSoftmax {
	if inChannels <= 0 {
		inChannels = 1
	}
	if classes <= 0 {
		classes = 4
	}
	rng := rand.New(rand.NewSource(seed))
	w := make([]float32, classes*inChannels)
	for i := range w {
		w[i] = float32((rng.Float64()*2 - 1) * 0.1)
	}
	return &VoxelSoftmax{
		inChannels: inChannels,
		classes:    classes,
		weight:     &Param{Name: "weight", Value: w, Grad: make([]float32, len(w))},
		bias:       &Param{Name: "bias", Value: make([]float32, classes), Grad: make([]float32, classes)},
		training:   true,
	}
}

// SetTraining implements Model.
func (m *VoxelSoftmax) SetTraining(training bool) {
	m.training = training
	if !training {
		m.lastInput, m.lastProbs, m.lastShape = nil, nil, nil
	}
}

// Params implements Parametrized.
func (m *VoxelSoftmax) Params() []*Param {
	return []*Param{m.weight, m.bias}
}

// Forward implements Model.
func (m *VoxelSoftmax) Forward(input *tensor.Dense) (*tensor.Dense, error) {
	shape := input.Shape()
	if len(shape) != 5 || shape[1] != m.inChannels {
		return nil, errors.Wrapf(volume.ErrShape, "model wants (B,%d,D,H,W) input, got %v", m.inChannels, shape)
	}
	x, err := volume.Float32s(input)
	if err != nil {
		return nil, err
	}
	batch := shape[0]
	voxels := shape[2] * shape[3] * shape[4]
	probs := make([]float32, batch*m.classes*voxels)
	logits := make([]float64, m.classes)
	for b := 0; b < batch; b++ {
		for v := 0; v < voxels; v++ {
			for c := 0; c < m.classes; c++ {
				sum := float64(m.bias.Value[c])
				for i := 0; i < m.inChannels; i++ {
					sum += float64(m.weight.Value[c*m.inChannels+i]) * float64(x[(b*m.inChannels+i)*voxels+v])
				}
				logits[c] = sum
			}
			for c, p := range softmax(logits) {
				probs[(b*m.classes+c)*voxels+v] = float32(p)
			}
		}
	}
	if m.training {
		m.lastInput = x
		m.lastProbs = probs
		m.lastShape = shape.Clone()
	}
	return volume.New(probs, batch, m.classes, shape[2], shape[3], shape[4]), nil
}

// Backward implements Model.
func (m *VoxelSoftmax) Backward(gradOutput *tensor.Dense) error {
	if m.lastProbs == nil {
		return errors.New("model: backward without a training forward pass")
	}
	g, err := volume.Float32s(gradOutput)
	if err != nil {
		return err
	}
	if len(g) != len(m.lastProbs) {
		return errors.Wrapf(volume.ErrShape, "gradient has %d elements, output had %d", len(g), len(m.lastProbs))
	}
	batch := m.lastShape[0]
	voxels := m.lastShape[2] * m.lastShape[3] * m.lastShape[4]
	for b := 0; b < batch; b++ {
		for v := 0; v < voxels; v++ {
			dot := 0.0
			for c := 0; c < m.classes; c++ {
				idx := (b*m.classes+c)*voxels + v
				dot += float64(g[idx]) * float64(m.lastProbs[idx])
			}
			for c := 0; c < m.classes; c++ {
				idx := (b*m.classes+c)*voxels + v
				dz := float64(m.lastProbs[idx]) * (float64(g[idx]) - dot)
				m.bias.Grad[c] += float32(dz)
				for i := 0; i < m.inChannels; i++ {
					m.weight.Grad[c*m.inChannels+i] += float32(dz * float64(m.lastInput[(b*m.inChannels+i)*voxels+v]))
				}
			}
		}
	}
	return nil
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		out[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
