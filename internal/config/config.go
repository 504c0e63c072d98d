package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// MaxInputElements caps the float32 input tensor at 4 GiB of host memory.
const MaxInputElements = 1 << 30

type Device string

const (
	DeviceCPU         Device = "cpu"
	DeviceAccelerator Device = "accelerator"
)

// ParseDevice accepts the canonical selectors plus the "cuda" and "gpu" aliases.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return DeviceCPU, nil
	case "accelerator", "cuda", "gpu":
		return DeviceAccelerator, nil
	default:
		return "", fmt.Errorf("invalid device: %q (must be cpu or accelerator)", s)
	}
}

func (d Device) String() string {
	return string(d)
}

// RunConfig holds the validated invocation parameters of one benchmark run.
type RunConfig struct {
	ModelPath  string
	InputShape []int64
	Device     Device
	Warmup     int
	Iterations int
	Debug      bool

	// Seed is nil when none was given and one is taken from the clock.
	Seed           *int64
	OutputDir      string
	LibraryPath    string
	IntraOpThreads int

	LogLevel  string
	LogFormat string

	MetricsAddr string
	MetricsFile string
	SamplesFile string
	FlightAddr  string
}

// ParseInputShape parses "1,3,224,224" into its ordered dimensions.
func ParseInputShape(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("invalid input_shape: empty")
	}
	parts := strings.Split(s, ",")
	shape := make([]int64, 0, len(parts))
	for i, p := range parts {
		dim, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input_shape: dimension %d %q is not an integer", i, p)
		}
		if dim <= 0 {
			return nil, fmt.Errorf("invalid input_shape: dimension %d is %d (must be positive)", i, dim)
		}
		shape = append(shape, dim)
	}
	return shape, nil
}

// FormatShape renders a shape the way it is accepted on the command line.
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ",")
}

func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("invalid model: path is required")
	}
	if len(c.InputShape) == 0 {
		return fmt.Errorf("invalid input_shape: at least one dimension is required")
	}
	for i, d := range c.InputShape {
		if d <= 0 {
			return fmt.Errorf("invalid input_shape: dimension %d is %d (must be positive)", i, d)
		}
	}
	if _, err := ParseDevice(string(c.Device)); err != nil {
		return err
	}
	if c.Warmup < 0 {
		return fmt.Errorf("invalid warmup: %d (must be non-negative)", c.Warmup)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("invalid iterations: %d (must be positive)", c.Iterations)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("invalid threads: %d (must be non-negative)", c.IntraOpThreads)
	}
	n := c.InputElements()
	if n <= 0 {
		return fmt.Errorf("invalid input_shape: %s overflows the element count", FormatShape(c.InputShape))
	}
	if n > MaxInputElements {
		return fmt.Errorf("invalid input_shape: %s needs %d elements, limit is %d", FormatShape(c.InputShape), n, MaxInputElements)
	}
	return nil
}

// InputElements is the number of values in one input tensor, or -1 on overflow.
func (c *RunConfig) InputElements() int64 {
	n := int64(1)
	for _, d := range c.InputShape {
		if d > 0 && n > (1<<62)/d {
			return -1
		}
		n *= d
	}
	return n
}

// ModelName is the artifact basename used to name result files.
func (c *RunConfig) ModelName() string {
	return filepath.Base(c.ModelPath)
}

func Default() RunConfig {
	return RunConfig{
		Device:     DeviceAccelerator,
		Warmup:     10,
		Iterations: 100,
		OutputDir:  ".",
		LogLevel:   "info",
		LogFormat:  "console",
	}
}
