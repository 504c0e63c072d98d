// Package harness wires the prober, loader, runner and reporter into one
// benchmark run and owns the top-level fatal-error handler.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/k0kubun/pp"
	"github.com/mattn/go-isatty"

	"github.com/23skdu/longbow-ortbench/internal/bench"
	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/export"
	"github.com/23skdu/longbow-ortbench/internal/loader"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/metrics"
	"github.com/23skdu/longbow-ortbench/internal/monitoring"
	"github.com/23skdu/longbow-ortbench/internal/probe"
	"github.com/23skdu/longbow-ortbench/internal/report"
)

type Prober interface {
	Probe(ctx context.Context) probe.CapabilityReport
}

type Loader interface {
	Load(path string, dev config.Device, report probe.CapabilityReport, debug bool) (*loader.Handle, error)
}

type Harness struct {
	Config     config.RunConfig
	Prober     Prober
	Loader     Loader
	Out        io.Writer
	Err        io.Writer
	ProcessRSS func() (int64, error)
	// Closer releases the inference runtime after the run.
	Closer io.Closer

	runner  atomic.Pointer[bench.Runner]
	mu      sync.Mutex
	current monitoring.RunStatus
}

// New builds a harness backed by the ONNX Runtime shared library.
func New(cfg config.RunConfig) *Harness {
	rt := engine.NewRuntime(cfg.LibraryPath, cfg.Debug)
	l := loader.New(rt)
	l.IntraOpThreads = cfg.IntraOpThreads

	return &Harness{
		Config:     cfg,
		Prober:     probe.New(rt, cfg.Debug),
		Loader:     l,
		Out:        os.Stdout,
		Err:        os.Stderr,
		ProcessRSS: device.ProcessRSS,
		Closer:     rt,
	}
}

// Execute runs the benchmark. Any fatal error, including a panic, is logged,
// followed by a fresh environment probe and a diagnostics dump.
func (h *Harness) Execute(ctx context.Context) (err error) {
	defer func() {
		if h.Closer != nil {
			if cerr := h.Closer.Close(); cerr != nil {
				logger.Log.Debug("runtime close failed", "error", cerr)
			}
		}
	}()

	err = h.runSafely(ctx)
	if err == nil {
		return nil
	}

	h.setStatus(func(s *monitoring.RunStatus) { s.Failed = true })
	if loader.IsLoadError(err) {
		logger.Log.Error("model load failed", "model", h.Config.ModelPath, "device", h.Config.Device.String(), "error", err)
	} else {
		logger.Log.Error("benchmark failed", "error", err)
	}
	h.diagnose(ctx)
	return err
}

func (h *Harness) runSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected fault: %v", r)
		}
	}()
	return h.Run(ctx)
}

func (h *Harness) diagnose(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("diagnostic probe failed", "fault", fmt.Sprint(r))
		}
	}()
	probe.Dump(h.Err, h.Prober.Probe(ctx))
}

func (h *Harness) setStatus(fn func(s *monitoring.RunStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.current)
}

// Status is the live run view served on /status.
func (h *Harness) Status() monitoring.RunStatus {
	h.mu.Lock()
	s := h.current
	h.mu.Unlock()

	if r := h.runner.Load(); r != nil {
		s.State = r.State().String()
		s.Completed = r.Completed()
		s.Iterations = r.Iterations()
		if r.State() == bench.StateAborted {
			s.Failed = true
		}
	}
	if s.State == "" {
		s.State = bench.StateIdle.String()
	}
	return s
}

// Run performs one benchmark and returns the first fatal error.
func (h *Harness) Run(ctx context.Context) error {
	cfg := h.Config
	log := logger.Log
	if cfg.Debug {
		pp.Fprintln(h.Err, cfg)
	}
	h.setStatus(func(s *monitoring.RunStatus) {
		s.Model = cfg.ModelName()
		s.Iterations = cfg.Iterations
	})

	var monitor *monitoring.HealthMonitor
	if cfg.MetricsAddr != "" {
		monitor = monitoring.NewHealthMonitor(h.Status)
		if _, err := monitor.Start(cfg.MetricsAddr); err != nil {
			log.Warn("status server not started", "addr", cfg.MetricsAddr, "error", err)
			monitor = nil
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = monitor.Stop(ctx)
			}()
		}
	}
	alert := func(level, component, msg string) {
		if monitor != nil {
			monitor.AddAlert(level, component, msg)
		}
	}

	caps := h.Prober.Probe(ctx)
	for _, d := range caps.Degradations {
		if cfg.Device == config.DeviceAccelerator {
			log.Warn("probe degraded", "probe", d.Probe, "reason", d.Reason)
		} else {
			log.Debug("probe degraded", "probe", d.Probe, "reason", d.Reason)
		}
		alert("info", "probe", d.Error())
	}
	if cfg.Debug || cfg.Device == config.DeviceAccelerator {
		probe.Dump(h.Err, caps)
	}
	if cfg.Debug {
		pp.Fprintln(h.Err, caps)
	}

	handle, err := h.Loader.Load(cfg.ModelPath, cfg.Device, caps, cfg.Debug)
	if err != nil {
		return err
	}
	defer handle.Close()

	for _, f := range handle.Fallbacks {
		alert("warning", "loader", f.Error())
	}
	handle.CheckShape(cfg.InputShape)
	h.setStatus(func(s *monitoring.RunStatus) {
		s.Device = handle.EffectiveDevice.String()
		s.Backend = handle.Backend.String()
	})

	seed := runSeed(cfg, time.Now)
	log.Info("benchmark starting",
		"device", handle.EffectiveDevice.String(),
		"input_shape", config.FormatShape(cfg.InputShape),
		"warmup", cfg.Warmup,
		"iterations", cfg.Iterations,
		"seed", seed)

	opts := bench.Options{
		Warmup:     cfg.Warmup,
		Iterations: cfg.Iterations,
		Shape:      cfg.InputShape,
		Seed:       seed,
	}
	if f, ok := h.Err.(*os.File); ok && !cfg.Debug && isatty.IsTerminal(f.Fd()) {
		opts.Progress = h.Err
	}
	runner := bench.New(opts, handle.Log)
	h.runner.Store(runner)

	samples, err := runner.Run(handle, handle.Device)
	if err != nil {
		return err
	}

	res, err := report.Summarize(samples, cfg.Iterations)
	if err != nil {
		return err
	}
	metrics.RecordSummary(res.Stats(), res.Throughput)

	run := report.Run{
		ModelPath:  cfg.ModelPath,
		Device:     handle.EffectiveDevice,
		Backend:    handle.Backend,
		InputShape: cfg.InputShape,
		Warmup:     cfg.Warmup,
		Iterations: cfg.Iterations,
		Metadata:   handle.Metadata,
		Memory:     h.memory(caps, handle),
	}
	for _, f := range handle.Fallbacks {
		run.Fallbacks = append(run.Fallbacks, f.Reason)
	}

	emitter := report.NewEmitter(h.Out, cfg.OutputDir)
	if _, err := emitter.Emit(run, res); err != nil {
		var werr *report.ArtifactWriteError
		if !errors.As(err, &werr) {
			return err
		}
		alert("error", "report", werr.Error())
	}

	h.exportSamples(ctx, run, samples)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteFile(cfg.MetricsFile); err != nil {
			log.Warn("metrics file not written", "path", cfg.MetricsFile, "error", err)
		} else {
			log.Info("metrics written", "path", cfg.MetricsFile)
		}
	}
	return nil
}

// runSeed is the configured seed, or one taken from now when none was given.
func runSeed(cfg config.RunConfig, now func() time.Time) int64 {
	if cfg.Seed != nil {
		return *cfg.Seed
	}
	return now().UnixNano()
}

func (h *Harness) memory(caps probe.CapabilityReport, handle *loader.Handle) report.Memory {
	var m report.Memory
	if caps.MemoryStats && h.ProcessRSS != nil {
		if rss, err := h.ProcessRSS(); err == nil {
			m.HasRSS = true
			m.RSSBytes = rss
			metrics.RecordProcessMemory(rss)
		}
	}
	if handle.EffectiveDevice == config.DeviceAccelerator {
		if used, total, ok := handle.DeviceMemory(); ok {
			m.HasDevice = true
			m.DeviceUsed = used
			m.DeviceTotal = total
			metrics.RecordDeviceMemory(used, total)
		}
	}
	return m
}

func (h *Harness) exportSamples(ctx context.Context, run report.Run, samples []float64) {
	cfg := h.Config
	if cfg.SamplesFile == "" && cfg.FlightAddr == "" {
		return
	}
	batch := export.Batch{
		Model:      filepath.Base(run.ModelPath),
		Device:     run.Device.String(),
		Backend:    run.Backend.String(),
		InputShape: config.FormatShape(run.InputShape),
		Warmup:     run.Warmup,
		Samples:    samples,
	}

	if cfg.SamplesFile != "" {
		if err := export.WriteFile(cfg.SamplesFile, batch); err != nil {
			logger.Log.Warn("samples file not written", "path", cfg.SamplesFile, "error", err)
		} else {
			logger.Log.Info("samples written", "path", cfg.SamplesFile, "count", len(samples))
		}
	}

	if cfg.FlightAddr != "" {
		if err := publish(ctx, cfg.FlightAddr, batch); err != nil {
			logger.Log.Warn("samples not published", "addr", cfg.FlightAddr, "error", err)
		} else {
			logger.Log.Info("samples published", "addr", cfg.FlightAddr, "count", len(samples))
		}
	}
}

func publish(ctx context.Context, addr string, batch export.Batch) error {
	fc, err := export.NewFlightClient(addr)
	if err != nil {
		return err
	}
	if err := fc.Connect(ctx); err != nil {
		return err
	}
	defer fc.Close()
	return fc.DoPut(ctx, batch)
}
