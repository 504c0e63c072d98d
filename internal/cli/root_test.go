package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/23skdu/longbow-ortbench/internal/config"
)

func execute(t *testing.T, args ...string) (config.RunConfig, error) {
	t.Helper()
	var got config.RunConfig
	cmd := NewRootCmd(config.NewViper(), func(ctx context.Context, cfg config.RunConfig) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return got, err
}

func TestRootDefaults(t *testing.T) {
	cfg, err := execute(t, "--model", "resnet50.onnx", "--input_shape", "1,3,224,224")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if cfg.Device != config.DeviceAccelerator || cfg.Warmup != 10 || cfg.Iterations != 100 || cfg.Debug {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if len(cfg.InputShape) != 4 || cfg.InputShape[3] != 224 {
		t.Errorf("unexpected shape %v", cfg.InputShape)
	}
}

func TestRootFlags(t *testing.T) {
	cfg, err := execute(t,
		"--model", "bert.onnx",
		"--input_shape", "1,128",
		"--device", "cpu",
		"--warmup", "0",
		"--iterations", "7",
		"--debug",
		"--seed", "99",
		"--threads", "4",
	)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != config.DeviceCPU || cfg.Warmup != 0 || cfg.Iterations != 7 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if !cfg.Debug || cfg.LogLevel != "debug" || cfg.Seed == nil || *cfg.Seed != 99 || cfg.IntraOpThreads != 4 {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestRootSeed(t *testing.T) {
	cfg, err := execute(t, "--model", "m.onnx", "--input_shape", "1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != nil {
		t.Errorf("expected no seed without the flag, got %d", *cfg.Seed)
	}

	cfg, err = execute(t, "--model", "m.onnx", "--input_shape", "1", "--seed", "0")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed == nil || *cfg.Seed != 0 {
		t.Errorf("explicit zero seed must be kept, got %v", cfg.Seed)
	}
}

func TestRootEnvironment(t *testing.T) {
	t.Setenv("ORTBENCH_ITERATIONS", "250")
	t.Setenv("ORTBENCH_OUTPUT_DIR", "/tmp/results")

	cfg, err := execute(t, "--model", "m.onnx", "--input_shape", "1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Iterations != 250 || cfg.OutputDir != "/tmp/results" {
		t.Errorf("environment not applied: %+v", cfg)
	}

	cfg, err = execute(t, "--model", "m.onnx", "--input_shape", "1", "--iterations", "3")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Iterations != 3 {
		t.Errorf("flag should override environment, got %d", cfg.Iterations)
	}
}

func TestRootRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing model", []string{"--input_shape", "1,3"}},
		{"missing shape", []string{"--model", "m.onnx"}},
		{"non-integer shape", []string{"--model", "m.onnx", "--input_shape", "1,x,224"}},
		{"bad device", []string{"--model", "m.onnx", "--input_shape", "1", "--device", "tpu"}},
		{"zero iterations", []string{"--model", "m.onnx", "--input_shape", "1", "--iterations", "0"}},
		{"positional args", []string{"--model", "m.onnx", "--input_shape", "1", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ran := false
			cmd := NewRootCmd(config.NewViper(), func(ctx context.Context, cfg config.RunConfig) error {
				ran = true
				return nil
			})
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Error("expected error")
			}
			if ran {
				t.Error("benchmark must not start with invalid input")
			}
		})
	}
}

func TestRootPropagatesRunError(t *testing.T) {
	want := errors.New("warmup call 1 failed")
	cmd := NewRootCmd(config.NewViper(), func(ctx context.Context, cfg config.RunConfig) error {
		return want
	})
	cmd.SetArgs([]string{"--model", "m.onnx", "--input_shape", "1"})
	if err := cmd.Execute(); !errors.Is(err, want) {
		t.Errorf("expected run error, got %v", err)
	}
}
