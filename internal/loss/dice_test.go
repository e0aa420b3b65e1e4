package loss

import (
	"math"
	"testing"

	"github.com/chinacui/medicalzoo/internal/volume"
)

func oneHot(labels []int, classes int) []float32 {
	out := make([]float32, classes*len(labels))
	for v, l := range labels {
		out[l*len(labels)+v] = 1
	}
	return out
}

func TestDicePerfectPrediction(t *testing.T) {
	labels := []int{0, 1, 2, 3, 3, 2, 1, 0}
	target := volume.New([]float32{0, 1, 2, 3, 3, 2, 1, 0}, 1, 2, 2, 2)
	output := volume.New(oneHot(labels, NumClasses), 1, NumClasses, 2, 2, 2)

	res, err := NewDice().Compute(output, target)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Loss > 1e-4 {
		t.Fatalf("expected ~0 loss, got %f", res.Loss)
	}
	for c, s := range res.Scores {
		if math.Abs(s-1) > 1e-4 {
			t.Fatalf("class %s score %f, want 1", ClassNames[c], s)
		}
	}
}

func TestDiceGradientPointsTowardsLabels(t *testing.T) {
	target := volume.New([]float32{0, 1}, 1, 1, 1, 2)
	uniform := make([]float32, NumClasses*2)
	for i := range uniform {
		uniform[i] = 0.25
	}
	output := volume.New(uniform, 1, NumClasses, 1, 1, 2)
	res, err := NewDice().Compute(output, target)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	grad, err := volume.Float32s(res.Grad)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	// voxel 0 is class 0: raising p(class 0) must lower the loss
	if grad[0] >= 0 {
		t.Fatalf("expected negative gradient on the true class, got %f", grad[0])
	}
	// voxel 0 is not class 1
	if grad[2] <= 0 {
		t.Fatalf("expected positive gradient on a wrong class, got %f", grad[2])
	}
}

func TestDiceRejectsWrongClassCount(t *testing.T) {
	output := volume.Zeros(1, 3, 1, 1, 1)
	target := volume.Zeros(1, 1, 1, 1)
	if _, err := NewDice().Compute(output, target); err == nil {
		t.Fatal("expected error for 3-class output")
	}
}
