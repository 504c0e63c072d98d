package engine

import (
	"fmt"
	"strings"
)

// Backend names an ONNX Runtime execution provider.
type Backend string

const (
	BackendCPU  Backend = "CPUExecutionProvider"
	BackendCUDA Backend = "CUDAExecutionProvider"
)

// IsAccelerator reports whether the backend runs on a device other than the host CPU.
func (b Backend) IsAccelerator() bool {
	return b == BackendCUDA
}

func (b Backend) String() string {
	return string(b)
}

// ContainsBackend reports whether list contains b.
func ContainsBackend(list []Backend, b Backend) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// OptimizationLevel mirrors the runtime graph optimization levels.
type OptimizationLevel int

const (
	OptimizationDisabled OptimizationLevel = iota
	OptimizationBasic
	OptimizationExtended
	OptimizationAll
)

func (o OptimizationLevel) String() string {
	switch o {
	case OptimizationDisabled:
		return "disabled"
	case OptimizationBasic:
		return "basic"
	case OptimizationExtended:
		return "extended"
	case OptimizationAll:
		return "all"
	default:
		return fmt.Sprintf("OptimizationLevel(%d)", int(o))
	}
}

// Tensor is a dense float32 host tensor.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NumElements returns the product of the shape dimensions.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no dimensions")
	}
	if n := t.NumElements(); n != int64(len(t.Data)) {
		return fmt.Errorf("tensor shape %v needs %d values, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// IOInfo describes one declared model input or output.
type IOInfo struct {
	Name     string
	Shape    []int64
	DataType string
}

func (i IOInfo) String() string {
	dims := make([]string, len(i.Shape))
	for k, d := range i.Shape {
		if d < 0 {
			dims[k] = "?"
		} else {
			dims[k] = fmt.Sprintf("%d", d)
		}
	}
	return fmt.Sprintf("%s[%s] %s", i.Name, strings.Join(dims, ","), i.DataType)
}

// SessionOptions selects how a session is constructed.
type SessionOptions struct {
	Backend           Backend
	DeviceID          int
	IntraOpThreads    int
	OptimizationLevel OptimizationLevel
}

// Session is a loaded model bound to one backend. Prepare binds the input
// tensor once; Run executes one inference with it.
type Session interface {
	Prepare(input Tensor) error
	Run() error
	InputName() string
	Inputs() []IOInfo
	Outputs() []IOInfo
	Close() error
}
