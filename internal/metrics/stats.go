package metrics

// EpochStats accumulates per-batch Dice statistics across one pass over a
// dataset. The zero value is ready to use.
type EpochStats struct {
	batches int
	loss    float64
	coeff   float64
	classes [4]float64
}

// Record adds one batch. coeff is the batch Dice coefficient in percent.
func (s *EpochStats) Record(loss, coeff float64, classes [4]float64) {
	s.batches++
	s.loss += loss
	s.coeff += coeff
	for i, v := range classes {
		s.classes[i] += v
	}
}

// Sums returns the raw running sums.
func (s *EpochStats) Sums() Summary {
	return Summary{Loss: s.loss, Coeff: s.coeff, Classes: s.classes}
}

// Mean returns the running sums divided by the number of batches.
func (s *EpochStats) Mean() Summary {
	if s.batches == 0 {
		return Summary{}
	}
	n := float64(s.batches)
	out := Summary{Loss: s.loss / n, Coeff: s.coeff / n}
	for i, v := range s.classes {
		out.Classes[i] = v / n
	}
	return out
}

// Summary is a loggable set of Dice statistics, either sums or means.
type Summary struct {
	Loss    float64
	Coeff   float64
	Classes [4]float64
}
