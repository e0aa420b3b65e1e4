package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	SaveDir          string  `yaml:"save_dir"`
	TrainRoot        string  `yaml:"train_root"`
	ValRoot          string  `yaml:"val_root"`
	Classes          int     `yaml:"classes"`
	InChannels       int     `yaml:"in_channels"`
	Epochs           int     `yaml:"epochs"`
	LR               float64 `yaml:"lr"`
	Seed             int64   `yaml:"seed"`
	Subvolume        [3]int  `yaml:"subvolume"`
	Volume           [3]int  `yaml:"volume"`
	VizEvery         int     `yaml:"viz_every"`
	SyntheticBatches int     `yaml:"synthetic_batches"`
	TensorBoard      bool    `yaml:"tensorboard"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	SaveDir    string
	TrainRoot  string
	ValRoot    string
	InChannels int
	Epochs     int
	LR         float64
	Seed       int64
	VizEvery   int
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		SaveDir:          "runs/medicalzoo",
		Classes:          4,
		InChannels:       2,
		Epochs:           10,
		LR:               0.1,
		Subvolume:        [3]int{16, 16, 16},
		Volume:           [3]int{32, 32, 32},
		VizEvery:         1,
		SyntheticBatches: 8,
		TensorBoard:      true,
	}
}

// Load reads and validates a Config from YAML. Keys absent from the file
// keep their Default value.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	cfg, err := parseYAML(f, Default())
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.SaveDir != "" {
		c.SaveDir = o.SaveDir
	}
	if o.TrainRoot != "" {
		c.TrainRoot = o.TrainRoot
	}
	if o.ValRoot != "" {
		c.ValRoot = o.ValRoot
	}
	if o.InChannels > 0 {
		c.InChannels = o.InChannels
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.LR > 0 {
		c.LR = o.LR
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.VizEvery > 0 {
		c.VizEvery = o.VizEvery
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.SaveDir == "" {
		return errors.New("save_dir must be set")
	}
	if c.Classes != 4 {
		return errors.Errorf("classes must be 4 (got %d)", c.Classes)
	}
	if c.InChannels < 1 || c.InChannels > 3 {
		return errors.Errorf("in_channels must be 1, 2 or 3 (got %d)", c.InChannels)
	}
	if c.Epochs <= 0 {
		return errors.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.LR <= 0 {
		return errors.Errorf("lr must be > 0 (got %g)", c.LR)
	}
	for i := 0; i < 3; i++ {
		if c.Subvolume[i] <= 0 || c.Volume[i] <= 0 {
			return errors.Errorf("subvolume %v and volume %v must be positive", c.Subvolume, c.Volume)
		}
		if c.Volume[i]%c.Subvolume[i] != 0 {
			return errors.Errorf("subvolume %v must tile volume %v", c.Subvolume, c.Volume)
		}
	}
	if c.TrainRoot == "" && c.SyntheticBatches <= 0 {
		return errors.New("either train_root or synthetic_batches must be set")
	}
	if c.VizEvery <= 0 {
		c.VizEvery = 1
	}
	return nil
}

func parseYAML(r io.Reader, cfg *Config) (*Config, error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("line %d: missing ':'", lineNo)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, "\"'")
		var err error
		switch key {
		case "save_dir":
			cfg.SaveDir = value
		case "train_root":
			cfg.TrainRoot = value
		case "val_root":
			cfg.ValRoot = value
		case "classes":
			cfg.Classes, err = strconv.Atoi(value)
		case "in_channels":
			cfg.InChannels, err = strconv.Atoi(value)
		case "epochs":
			cfg.Epochs, err = strconv.Atoi(value)
		case "lr":
			cfg.LR, err = strconv.ParseFloat(value, 64)
		case "seed":
			cfg.Seed, err = strconv.ParseInt(value, 10, 64)
		case "subvolume":
			cfg.Subvolume, err = parseDims(value)
		case "volume":
			cfg.Volume, err = parseDims(value)
		case "viz_every":
			cfg.VizEvery, err = strconv.Atoi(value)
		case "synthetic_batches":
			cfg.SyntheticBatches, err = strconv.Atoi(value)
		case "tensorboard":
			cfg.TensorBoard, err = strconv.ParseBool(value)
		default:
			return nil, errors.Errorf("line %d: unknown key %s", lineNo, key)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDims accepts "d,h,w" optionally wrapped in brackets.
func parseDims(value string) ([3]int, error) {
	var dims [3]int
	value = strings.Trim(value, "[]() ")
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return dims, errors.Errorf("want 3 comma separated dims, got %q", value)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return dims, err
		}
		dims[i] = v
	}
	return dims, nil
}
