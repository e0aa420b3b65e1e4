package model

import (
	"testing"

	"github.com/chinacui/medicalzoo/internal/loss"
	"github.com/chinacui/medicalzoo/internal/volume"
)

func TestVoxelSoftmaxTrainStepReducesLoss(t *testing.T) {
	m := NewVoxelSoftmax(1, loss.NumClasses, 1)
	opt := NewSGD(m, 1)
	crit := loss.NewDice()

	// intensity encodes the class, so a linear model can separate them
	labels := []float32{0, 1, 2, 3, 0, 1, 2, 3}
	input := volume.New([]float32{0, 1, 2, 3, 0, 1, 2, 3}, 1, 1, 2, 2, 2)
	target := volume.New(labels, 1, 2, 2, 2)

	step := func() float64 {
		opt.ZeroGrad()
		out, err := m.Forward(input)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		res, err := crit.Compute(out, target)
		if err != nil {
			t.Fatalf("Compute: %v", err)
		}
		if err := m.Backward(res.Grad); err != nil {
			t.Fatalf("Backward: %v", err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
		return res.Loss
	}

	first := step()
	var last float64
	for i := 0; i < 30; i++ {
		last = step()
	}
	if last >= first {
		t.Fatalf("expected loss to decrease; first=%f last=%f", first, last)
	}
}

func TestVoxelSoftmaxOutputIsDistribution(t *testing.T) {
	m := NewVoxelSoftmax(2, 4, 7)
	m.SetTraining(false)
	out, err := m.Forward(volume.New([]float32{0.5, -1, 2, 0.25}, 1, 2, 1, 1, 2))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	probs, _ := volume.Float32s(out)
	for v := 0; v < 2; v++ {
		sum := float32(0)
		for c := 0; c < 4; c++ {
			sum += probs[c*2+v]
		}
		if sum < 0.999 || sum > 1.001 {
			t.Fatalf("voxel %d probabilities sum to %f", v, sum)
		}
	}
	if err := m.Backward(out); err == nil {
		t.Fatal("expected backward to fail after an inference-only forward")
	}
}
