package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/harness"
	"github.com/23skdu/longbow-ortbench/internal/logger"
)

// RunFunc executes one benchmark with a validated configuration.
type RunFunc func(ctx context.Context, cfg config.RunConfig) error

func runHarness(ctx context.Context, cfg config.RunConfig) error {
	return harness.New(cfg).Execute(ctx)
}

// NewRootCmd builds the ortbench command. Settings are layered
// flags > ORTBENCH_* environment > config file > defaults.
func NewRootCmd(v *viper.Viper, run RunFunc) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "ortbench",
		Short: "ortbench measures ONNX model inference latency on CPU and accelerators",
		Example: "  ortbench --model resnet50.onnx --input_shape 1,3,224,224 --device accelerator\n" +
			"  ortbench --model bert.onnx --input_shape 1,128 --device cpu --iterations 500",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			logger.Setup(cfg.LogLevel, cfg.LogFormat)
			return run(cmd.Context(), cfg)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	f.String(config.KeyModel, "", "path to the ONNX model (required)")
	f.String(config.KeyInputShape, "", "input shape, comma separated, e.g. 1,3,224,224 (required)")
	f.String(config.KeyDevice, string(d.Device), "execution device: cpu or accelerator")
	f.Int(config.KeyWarmup, d.Warmup, "number of warmup calls")
	f.Int(config.KeyIterations, d.Iterations, "number of measured calls")
	f.Bool(config.KeyDebug, false, "verbose probing and per-call logging")
	f.Int64(config.KeySeed, 0, "input PRNG seed (default: taken from the clock and logged)")
	f.String(config.KeyOutputDir, d.OutputDir, "directory of the result file")
	f.String(config.KeyLibraryPath, "", "ONNX Runtime shared library (default $ONNXRUNTIME_SHARED_LIBRARY_PATH)")
	f.Int(config.KeyThreads, 0, "intra-op threads, 0 uses the runtime default")
	f.String(config.KeyLogLevel, d.LogLevel, "log level: debug, info, warn, error")
	f.String(config.KeyLogFormat, d.LogFormat, "log format: console or json")
	f.String(config.KeyMetricsAddr, "", "serve /metrics, /healthz and /status on this address during the run")
	f.String(config.KeyMetricsFile, "", "write Prometheus metrics to this file after the run")
	f.String(config.KeySamplesOut, "", "write raw latency samples to this Arrow IPC file")
	f.String(config.KeyFlightAddr, "", "upload raw latency samples to this Arrow Flight endpoint")

	if err := v.BindPFlags(f); err != nil {
		panic(fmt.Sprintf("bind flags: %v", err))
	}
	return cmd
}

// Execute runs the CLI and exits non-zero on any fatal error.
func Execute() {
	cmd := NewRootCmd(config.NewViper(), runHarness)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
