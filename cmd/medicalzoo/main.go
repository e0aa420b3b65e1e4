package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/chinacui/medicalzoo/internal/config"
	"github.com/chinacui/medicalzoo/internal/dataset"
	"github.com/chinacui/medicalzoo/internal/loss"
	"github.com/chinacui/medicalzoo/internal/metrics"
	"github.com/chinacui/medicalzoo/internal/model"
	"github.com/chinacui/medicalzoo/internal/nifti"
	"github.com/chinacui/medicalzoo/internal/trainer"
	"github.com/chinacui/medicalzoo/internal/viz"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	saveDir := flag.String("save", "", "Override output directory")
	trainRoot := flag.String("train-root", "", "Override training data root")
	valRoot := flag.String("val-root", "", "Override validation data root")
	inChannels := flag.Int("in-channels", 0, "Number of input modalities (1-3)")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	lr := flag.Float64("lr", 0, "Learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	vizEvery := flag.Int("viz-every", 0, "Export predictions every N epochs")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		SaveDir:    *saveDir,
		TrainRoot:  *trainRoot,
		ValRoot:    *valRoot,
		InChannels: *inChannels,
		Epochs:     *epochs,
		LR:         *lr,
		Seed:       *seed,
		VizEvery:   *vizEvery,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.TrainRoot == "" && cfg.InChannels > 2 {
		log.Fatalf("synthetic data has two modalities, in_channels=%d needs train_root", cfg.InChannels)
	}
	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		log.Fatalf("create save dir: %v", err)
	}

	train, err := openLoader(cfg.TrainRoot, cfg.SyntheticBatches, cfg.Subvolume, cfg.Seed)
	if err != nil {
		log.Fatalf("training data: %v", err)
	}
	valBatches := cfg.SyntheticBatches / 4
	if valBatches < 1 {
		valBatches = 1
	}
	val, err := openLoader(cfg.ValRoot, valBatches, cfg.Subvolume, cfg.Seed+1)
	if err != nil {
		log.Fatalf("validation data: %v", err)
	}
	log.Printf("train_batches=%d val_batches=%d in_channels=%d", train.Len(), val.Len(), cfg.InChannels)

	var writer metrics.Writer = metrics.Discard
	if cfg.TensorBoard {
		ew, err := metrics.NewEventWriter(cfg.SaveDir)
		if err != nil {
			log.Fatalf("tensorboard writer: %v", err)
		}
		defer ew.Close()
		log.Printf("tensorboard events=%s", ew.Path())
		writer = ew
	}

	net := model.NewVoxelSoftmax(cfg.InChannels, cfg.Classes, cfg.Seed)
	prep := trainer.ChannelPreparer{InChannels: cfg.InChannels}
	env := trainer.Env{
		Model:     net,
		Criterion: loss.NewDice(),
		Optimizer: model.NewSGD(net, cfg.LR),
		Prepare:   prep,
		Writer:    writer,
	}

	exportCfg := viz.ExportConfig{
		SaveDir:    cfg.SaveDir,
		Classes:    cfg.Classes,
		InChannels: cfg.InChannels,
		Subvolume:  cfg.Subvolume,
		Volume:     cfg.Volume,
		Affine:     nifti.Identity(),
		Writer:     writer,
	}
	visualize, err := visualizer(cfg, exportCfg, net, prep)
	if err != nil {
		log.Fatalf("prepare visualization: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		Env:       env,
		Train:     train,
		Val:       val,
		Epochs:    cfg.Epochs,
		SaveDir:   cfg.SaveDir,
		VizEvery:  cfg.VizEvery,
		Visualize: visualize,
	}

	if _, err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}

// openLoader reads .npy triples or tar shards under root, falling back to
// synthetic phantoms when root is empty.
func openLoader(root string, synthetic int, dims [3]int, seed int64) (dataset.Loader, error) {
	if root == "" {
		syn, err := dataset.NewSynthetic(synthetic, dims, seed)
		if err != nil {
			return nil, err
		}
		return syn, nil
	}
	triples, err := dataset.DiscoverTriples(root)
	if err != nil {
		return nil, err
	}
	if len(triples) > 0 {
		log.Printf("root=%s triples=%d", root, len(triples))
		return dataset.Triples(triples), nil
	}
	shards, err := dataset.DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, errors.Errorf("no samples discovered under %s", root)
	}
	log.Printf("root=%s shards=%d", root, len(shards))
	loader, err := dataset.OpenShards(shards)
	if err != nil {
		return nil, err
	}
	return loader, nil
}

// visualizer exports the validation triples when val_root holds them and a
// synthetic full volume otherwise.
func visualizer(cfg *config.Config, exportCfg viz.ExportConfig, m model.Model, prep trainer.InputPreparer) (func(int) error, error) {
	if cfg.ValRoot != "" {
		triples, err := dataset.DiscoverTriples(cfg.ValRoot)
		if err != nil {
			return nil, err
		}
		if len(triples) > 0 {
			return func(epoch int) error {
				return viz.VisualizeOffline(exportCfg, triples, m, prep, epoch)
			}, nil
		}
	}

	syn, err := dataset.NewSynthetic(1, cfg.Volume, cfg.Seed+2)
	if err != nil {
		return nil, err
	}
	b, err := syn.Batch(0)
	if err != nil {
		return nil, err
	}
	full := viz.FullVolume{Modalities: b.Modalities, Target: b.Target}
	return func(epoch int) error {
		return viz.VisualizeNoOverlap(exportCfg, full, m, epoch)
	}, nil
}
