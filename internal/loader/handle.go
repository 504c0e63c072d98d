package loader

import (
	"errors"
	"fmt"
	"time"

	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/onnx"
)

// Handle is a loaded model ready to be driven by the benchmark runner.
type Handle struct {
	Session           engine.Session
	Device            device.Device
	Backend           engine.Backend
	EffectiveDevice   config.Device
	InputName         string
	OptimizationLevel engine.OptimizationLevel
	Metadata          *onnx.Metadata
	Fallbacks         []Fallback
	LoadTime          time.Duration
	Log               *logger.Logger

	calls int
}

func (h *Handle) Prepare(input engine.Tensor) error {
	if err := h.Session.Prepare(input); err != nil {
		return fmt.Errorf("failed to bind input %s: %w", h.InputName, err)
	}
	h.Log.Debug("input bound", "input", h.InputName, "shape", input.Shape)
	return nil
}

// Run executes one inference on the bound input.
func (h *Handle) Run() error {
	h.calls++
	if err := h.Session.Run(); err != nil {
		return err
	}
	h.Log.Debug("inference call", "n", h.calls)
	return nil
}

// CheckShape logs a warning when shape disagrees with the declared input.
// Symbolic or unknown dimensions match anything.
func (h *Handle) CheckShape(shape []int64) bool {
	if h.Metadata == nil || len(h.Metadata.Inputs) == 0 {
		return true
	}
	declared := h.Metadata.Inputs[0]
	if len(declared.Dims) != len(shape) {
		h.Log.Warn("input rank differs from the model declaration",
			"declared", declared.String(), "shape", config.FormatShape(shape))
		return false
	}
	for i, d := range declared.Dims {
		if d.Param == "" && d.Value > 0 && d.Value != shape[i] {
			h.Log.Warn("input dimension differs from the model declaration",
				"declared", declared.String(), "dim", i, "want", d.Value, "got", shape[i])
			return false
		}
	}
	return true
}

// DeviceMemory returns accelerator memory used and total when the device reports it.
func (h *Handle) DeviceMemory() (int64, int64, bool) {
	if h.Device == nil {
		return 0, 0, false
	}
	return h.Device.Memory()
}

func (h *Handle) Close() error {
	var errs []error
	if h.Session != nil {
		errs = append(errs, h.Session.Close())
		h.Session = nil
	}
	if h.Device != nil {
		errs = append(errs, h.Device.Close())
		h.Device = nil
	}
	return errors.Join(errs...)
}
