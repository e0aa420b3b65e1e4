package trainer

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/chinacui/medicalzoo/internal/dataset"
	"github.com/chinacui/medicalzoo/internal/metrics"
)

// RunConfig captures the knobs required by the multi-epoch driver.
type RunConfig struct {
	Env      Env
	Train    dataset.Loader
	Val      dataset.Loader
	Epochs   int
	SaveDir  string
	VizEvery int

	// Visualize, when set, is called after every VizEvery-th epoch.
	Visualize func(epoch int) error
}

// EpochLog is the outcome of one epoch.
type EpochLog struct {
	Epoch int
	Train metrics.Summary
	Val   *metrics.Summary
}

// Run executes Epochs train/eval rounds, appending to train.csv and val.csv
// under SaveDir. Cancellation is honoured between epochs.
func Run(ctx context.Context, cfg RunConfig) ([]EpochLog, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.Train == nil {
		return nil, errors.New("trainer: training loader is nil")
	}
	if cfg.VizEvery <= 0 {
		cfg.VizEvery = 1
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create save dir")
	}

	trainF, err := OpenLogFile(filepath.Join(cfg.SaveDir, "train.csv"))
	if err != nil {
		return nil, err
	}
	defer trainF.Close()
	var valF *LogFile
	if cfg.Val != nil {
		valF, err = OpenLogFile(filepath.Join(cfg.SaveDir, "val.csv"))
		if err != nil {
			return nil, err
		}
		defer valF.Close()
	}

	history := make([]EpochLog, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		entry := EpochLog{Epoch: epoch}
		entry.Train, err = TrainEpoch(cfg.Env, epoch, cfg.Train, trainF)
		if err != nil {
			return history, err
		}
		if cfg.Val != nil {
			val, err := EvalEpoch(cfg.Env, epoch, cfg.Val, valF)
			if err != nil {
				return history, err
			}
			entry.Val = &val
		}
		if cfg.Visualize != nil && epoch%cfg.VizEvery == 0 {
			if err := cfg.Visualize(epoch); err != nil {
				return history, errors.Wrapf(err, "visualize epoch %d", epoch)
			}
		}
		if entry.Val != nil {
			log.Printf("epoch=%d train_loss=%.4f train_coeff=%.2f val_loss=%.4f val_coeff=%.2f",
				epoch, entry.Train.Loss, entry.Train.Coeff, entry.Val.Loss, entry.Val.Coeff)
		} else {
			log.Printf("epoch=%d train_loss=%.4f train_coeff=%.2f", epoch, entry.Train.Loss, entry.Train.Coeff)
		}
		history = append(history, entry)
	}
	return history, nil
}
