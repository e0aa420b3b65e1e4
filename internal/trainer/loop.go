package trainer

import (
	"github.com/pkg/errors"

	"github.com/chinacui/medicalzoo/internal/dataset"
	"github.com/chinacui/medicalzoo/internal/loss"
	"github.com/chinacui/medicalzoo/internal/metrics"
	"github.com/chinacui/medicalzoo/internal/model"
)

// Env bundles the collaborators one epoch needs.
type Env struct {
	Model     model.Model
	Criterion loss.Criterion
	Optimizer model.Optimizer
	Prepare   InputPreparer
	Writer    metrics.Writer
}

func (e Env) writer() metrics.Writer {
	if e.Writer == nil {
		return metrics.Discard
	}
	return e.Writer
}

// TrainEpoch runs one optimisation pass over loader and returns the epoch
// means. Every quarter of the loader a partial status line is appended to out.
func TrainEpoch(env Env, epoch int, loader dataset.Loader, out LineWriter) (metrics.Summary, error) {
	n := loader.Len()
	if n == 0 {
		return metrics.Summary{}, errors.New("trainer: empty training loader")
	}
	env.Model.SetTraining(true)
	stop := n / 4
	if stop < 1 {
		stop = 1
	}
	w := env.writer()

	var stats metrics.EpochStats
	for i := 0; i < n; i++ {
		batch, err := loader.Batch(i)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d", i)
		}
		env.Optimizer.ZeroGrad()

		input, target, err := env.Prepare.Prepare(batch)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d", i)
		}
		output, err := env.Model.Forward(input)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d: forward", i)
		}
		res, err := env.Criterion.Compute(output, target)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d: criterion", i)
		}
		if res.Grad == nil {
			return metrics.Summary{}, errors.Errorf("train batch %d: criterion returned no gradient", i)
		}
		if err := env.Model.Backward(res.Grad); err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d: backward", i)
		}
		if err := env.Optimizer.Step(); err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "train batch %d: step", i)
		}

		partialEpoch := float64(epoch) + float64(i)/float64(n) - 1
		coeff := 100 * (1 - res.Loss)
		stats.Record(res.Loss, coeff, res.Scores)

		if err := writeScores(w, "Train", epoch*n+i, res.Loss, coeff, res.Scores); err != nil {
			return metrics.Summary{}, err
		}

		if i%stop == 0 {
			err := DisplayStatus(out, Status{
				Epoch:        epoch,
				Stats:        stats.Sums(),
				PartialEpoch: partialEpoch,
				Processed:    i + 1,
			})
			if err != nil {
				return metrics.Summary{}, err
			}
		}
	}

	mean := stats.Mean()
	if err := DisplayStatus(out, Status{Epoch: epoch, Stats: mean, Summary: true}); err != nil {
		return metrics.Summary{}, err
	}
	return mean, nil
}

// EvalEpoch scores the model over loader without updating it and records
// one validation summary at step epoch.
func EvalEpoch(env Env, epoch int, loader dataset.Loader, out LineWriter) (metrics.Summary, error) {
	n := loader.Len()
	if n == 0 {
		return metrics.Summary{}, errors.New("trainer: empty evaluation loader")
	}
	env.Model.SetTraining(false)

	var stats metrics.EpochStats
	for i := 0; i < n; i++ {
		batch, err := loader.Batch(i)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "eval batch %d", i)
		}
		input, target, err := env.Prepare.Prepare(batch)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "eval batch %d", i)
		}
		output, err := env.Model.Forward(input)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "eval batch %d: forward", i)
		}
		res, err := env.Criterion.Compute(output, target)
		if err != nil {
			return metrics.Summary{}, errors.Wrapf(err, "eval batch %d: criterion", i)
		}
		stats.Record(res.Loss, 100*(1-res.Loss), res.Scores)
	}

	mean := stats.Mean()
	if err := DisplayStatus(out, Status{Epoch: epoch, Stats: mean, Summary: true}); err != nil {
		return metrics.Summary{}, err
	}
	if err := writeScores(env.writer(), "Val", epoch, mean.Loss, mean.Coeff, mean.Classes); err != nil {
		return metrics.Summary{}, err
	}
	return mean, nil
}

func writeScores(w metrics.Writer, prefix string, step int, lossValue, coeff float64, classes [loss.NumClasses]float64) error {
	if err := w.AddScalar(prefix+"/dice_loss", lossValue, step); err != nil {
		return errors.Wrap(err, "write scalar")
	}
	if err := w.AddScalar(prefix+"/dice_coeff", coeff, step); err != nil {
		return errors.Wrap(err, "write scalar")
	}
	for c, name := range loss.ClassNames {
		if err := w.AddScalar(prefix+"/"+name, classes[c], step); err != nil {
			return errors.Wrap(err, "write scalar")
		}
	}
	return nil
}
