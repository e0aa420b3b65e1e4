package metrics

import (
	"math"
	"testing"
)

func TestEpochStatsMean(t *testing.T) {
	var s EpochStats
	losses := []float64{0.1, 0.2, 0.3, 0.4}
	for _, l := range losses {
		s.Record(l, 100*(1-l), [4]float64{0.9, 0.8, 0.7, 0.6})
	}
	mean := s.Mean()
	if math.Abs(mean.Loss-0.25) > 1e-9 {
		t.Fatalf("expected mean loss 0.25, got %f", mean.Loss)
	}
	if math.Abs(mean.Coeff-75) > 1e-9 {
		t.Fatalf("expected mean coeff 75, got %f", mean.Coeff)
	}
	want := [4]float64{0.9, 0.8, 0.7, 0.6}
	for i := range want {
		if math.Abs(mean.Classes[i]-want[i]) > 1e-9 {
			t.Fatalf("class %d mean %f want %f", i, mean.Classes[i], want[i])
		}
	}
	if sums := s.Sums(); math.Abs(sums.Loss-1.0) > 1e-9 {
		t.Fatalf("expected loss sum 1.0, got %f", sums.Loss)
	}
}

func TestEpochStatsZeroValue(t *testing.T) {
	var s EpochStats
	if s.Mean() != (Summary{}) || s.Sums() != (Summary{}) {
		t.Fatalf("zero value should summarize to nothing, got %+v", s.Mean())
	}
}
