package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by the command line, the environment and config files.
const (
	KeyModel       = "model"
	KeyInputShape  = "input_shape"
	KeyDevice      = "device"
	KeyWarmup      = "warmup"
	KeyIterations  = "iterations"
	KeyDebug       = "debug"
	KeySeed        = "seed"
	KeyOutputDir   = "output-dir"
	KeyLibraryPath = "ort-lib"
	KeyThreads     = "threads"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyMetricsAddr = "metrics-addr"
	KeyMetricsFile = "metrics-file"
	KeySamplesOut  = "samples-out"
	KeyFlightAddr  = "flight-addr"
)

const EnvPrefix = "ORTBENCH"

// NewViper returns a viper instance with defaults and environment binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyDevice, string(d.Device))
	v.SetDefault(KeyWarmup, d.Warmup)
	v.SetDefault(KeyIterations, d.Iterations)
	v.SetDefault(KeyOutputDir, d.OutputDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges an optional config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return nil
}

// FromViper builds and validates a RunConfig from the layered settings in v.
func FromViper(v *viper.Viper) (RunConfig, error) {
	cfg := RunConfig{
		ModelPath:      v.GetString(KeyModel),
		Warmup:         v.GetInt(KeyWarmup),
		Iterations:     v.GetInt(KeyIterations),
		Debug:          v.GetBool(KeyDebug),
		OutputDir:      v.GetString(KeyOutputDir),
		LibraryPath:    v.GetString(KeyLibraryPath),
		IntraOpThreads: v.GetInt(KeyThreads),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		MetricsAddr:    v.GetString(KeyMetricsAddr),
		MetricsFile:    v.GetString(KeyMetricsFile),
		SamplesFile:    v.GetString(KeySamplesOut),
		FlightAddr:     v.GetString(KeyFlightAddr),
	}

	if v.IsSet(KeySeed) {
		seed := v.GetInt64(KeySeed)
		cfg.Seed = &seed
	}

	dev, err := ParseDevice(v.GetString(KeyDevice))
	if err != nil {
		return RunConfig{}, err
	}
	cfg.Device = dev

	shape, err := ParseInputShape(v.GetString(KeyInputShape))
	if err != nil {
		return RunConfig{}, err
	}
	cfg.InputShape = shape

	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
