package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadParsesKnownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	body := `# demo run
save_dir: "out/run1"
in_channels: 3
epochs: 5
lr: 0.05
seed: 42
subvolume: [8, 16, 16]
volume: 16,32,32
tensorboard: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SaveDir != "out/run1" || cfg.InChannels != 3 || cfg.Epochs != 5 || cfg.Seed != 42 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Subvolume != [3]int{8, 16, 16} || cfg.Volume != [3]int{16, 32, 32} {
		t.Fatalf("unexpected dims %v %v", cfg.Subvolume, cfg.Volume)
	}
	if cfg.TensorBoard {
		t.Fatal("tensorboard should be disabled")
	}
	if cfg.Classes != 4 {
		t.Fatalf("classes should keep its default, got %d", cfg.Classes)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("bogus: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.InChannels = 4
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for 4 input channels")
	}

	cfg = Default()
	cfg.Subvolume = [3]int{5, 16, 16}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for a subvolume that does not tile the volume")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{Epochs: 3, TrainRoot: "/data", LR: 0.5})
	if cfg.Epochs != 3 || cfg.TrainRoot != "/data" || cfg.LR != 0.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.InChannels != 2 {
		t.Fatalf("zero override must keep the value, got %d", cfg.InChannels)
	}
}
