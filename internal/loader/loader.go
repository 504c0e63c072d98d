// Package loader turns a model path into a Handle bound to one backend,
// falling back to the CPU when the requested accelerator is unusable.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/metrics"
	"github.com/23skdu/longbow-ortbench/internal/onnx"
	"github.com/23skdu/longbow-ortbench/internal/probe"
)

// Factory creates inference sessions. *engine.Runtime implements it.
type Factory interface {
	NewSession(path string, opts engine.SessionOptions) (engine.Session, error)
}

type Loader struct {
	Factory        Factory
	OpenDevice     func(kind device.Kind, index int) (device.Device, error)
	ReadMetadata   func(path string) (*onnx.Metadata, error)
	DeviceIndex    int
	IntraOpThreads int
}

func New(f Factory) *Loader {
	return &Loader{
		Factory:      f,
		OpenDevice:   device.Open,
		ReadMetadata: onnx.ReadFile,
	}
}

// Load resolves path to a Handle for the requested device. Only a failure to
// construct the session is fatal; device problems degrade to the CPU and
// unreadable metadata is skipped.
func (l *Loader) Load(path string, want config.Device, report probe.CapabilityReport, debug bool) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("%s is a directory", path)}
	}

	log := logger.Log.With("model", filepath.Base(path))
	if debug {
		log = log.WithLevel("debug")
	}

	h := &Handle{
		Backend:           engine.BackendCPU,
		EffectiveDevice:   config.DeviceCPU,
		OptimizationLevel: engine.OptimizationAll,
		Log:               log,
	}
	fallback := func(reason string) {
		f := Fallback{From: config.DeviceAccelerator, To: config.DeviceCPU, Reason: reason}
		h.Fallbacks = append(h.Fallbacks, f)
		metrics.RecordFallback(string(f.From), string(f.To))
		log.Warn("falling back to cpu", "reason", reason)
	}

	if want == config.DeviceAccelerator {
		switch {
		case !report.AcceleratorRuntime():
			fallback("no accelerator device visible")
		case !report.HasBackend(engine.BackendCUDA):
			fallback(fmt.Sprintf("%s not available in runtime", engine.BackendCUDA))
		default:
			h.Backend = engine.BackendCUDA
			h.EffectiveDevice = config.DeviceAccelerator
		}
	}

	if h.Backend.IsAccelerator() {
		dev, err := l.OpenDevice(device.KindAccelerator, l.DeviceIndex)
		if err != nil {
			fallback(fmt.Sprintf("failed to open accelerator %d: %v", l.DeviceIndex, err))
			h.Backend = engine.BackendCPU
			h.EffectiveDevice = config.DeviceCPU
		} else {
			h.Device = dev
		}
	}
	if h.Device == nil {
		dev, err := l.OpenDevice(device.KindCPU, 0)
		if err != nil {
			return nil, &LoadError{Path: path, Backend: h.Backend, Err: err}
		}
		h.Device = dev
	}

	h.readMetadata(l.ReadMetadata, path)

	opts := engine.SessionOptions{
		Backend:           h.Backend,
		DeviceID:          l.DeviceIndex,
		IntraOpThreads:    l.IntraOpThreads,
		OptimizationLevel: h.OptimizationLevel,
	}
	start := time.Now()
	sess, err := l.Factory.NewSession(path, opts)
	if err != nil {
		_ = h.Device.Close()
		return nil, &LoadError{Path: path, Backend: h.Backend, Err: err}
	}
	h.LoadTime = time.Since(start)
	metrics.RecordLoad(h.LoadTime)

	h.Session = sess
	h.InputName = sess.InputName()
	if ins := sess.Inputs(); len(ins) > 1 {
		log.Warn("model declares multiple inputs, only the first is fed", "input", h.InputName, "count", len(ins))
	}
	if log.Enabled(zerolog.DebugLevel) {
		log.Debug("session bound", "inputs", ioNames(sess.Inputs()), "outputs", ioNames(sess.Outputs()))
	}

	log.Info("model loaded",
		"backend", h.Backend,
		"device", h.Device.Name(),
		"input", h.InputName,
		"optimization", h.OptimizationLevel.String(),
		"load_time", h.LoadTime)
	return h, nil
}

func (h *Handle) readMetadata(read func(string) (*onnx.Metadata, error), path string) {
	if read == nil {
		return
	}
	md, err := read(path)
	if err != nil {
		merr := &MetadataReadError{Path: path, Err: err}
		h.Log.Warn("model metadata unavailable", "error", merr)
		return
	}
	h.Metadata = md
	h.Log.Info("model metadata",
		"ir_version", md.IRVersion,
		"producer", md.ProducerName,
		"producer_version", md.ProducerVersion,
		"opset", md.OpsetVersion())
	if !h.Log.Enabled(zerolog.DebugLevel) {
		return
	}
	h.Log.Debug("model graph",
		"graph", md.GraphName,
		"domain", md.Domain,
		"model_version", md.ModelVersion,
		"nodes", md.NodeCount,
		"initializers", md.InitializerCount,
		"inputs", valueNames(md.Inputs),
		"outputs", valueNames(md.Outputs),
		"props", md.Props,
		"doc", md.DocString)
}

func ioNames(infos []engine.IOInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.String()
	}
	return out
}

func valueNames(infos []onnx.ValueInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.String()
	}
	return out
}

// IsLoadError reports whether err is, or wraps, a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
