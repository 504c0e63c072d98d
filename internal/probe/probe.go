// Package probe inspects the host for compute devices and inference backends.
// Probing never fails: each check that cannot complete leaves its field empty
// and records a Degradation on the report.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/metrics"
)

const (
	DriverTool     = "nvidia-smi"
	DefaultTimeout = 10 * time.Second
	headLines      = 10
)

var driverToolPaths = []string{
	"/usr/bin/nvidia-smi",
	"/usr/local/nvidia/bin/nvidia-smi",
	"/usr/lib/wsl/lib/nvidia-smi",
}

// Degradation records a probe that could not complete.
type Degradation struct {
	Probe  string
	Reason string
}

func (d Degradation) Error() string {
	return fmt.Sprintf("probe %s degraded: %s", d.Probe, d.Reason)
}

// ToolStatus is the outcome of looking for and running the driver tool.
type ToolStatus struct {
	Found bool
	Path  string
	// Head holds the first lines of the tool's plain output, captured in debug mode.
	Head []string
}

type CapabilityReport struct {
	OS        string
	Arch      string
	GoVersion string
	NumCPU    int

	RuntimeAvailable bool
	RuntimeVersion   string
	RuntimeLibrary   string
	Backends         []engine.Backend

	Accelerators []device.Info
	DriverTool   ToolStatus
	CUDAPath     string
	CUDABuild    bool
	MemoryStats  bool

	Degradations []Degradation
}

func (r *CapabilityReport) HasBackend(b engine.Backend) bool {
	return engine.ContainsBackend(r.Backends, b)
}

// AcceleratorRuntime reports whether at least one accelerator device is usable.
func (r *CapabilityReport) AcceleratorRuntime() bool {
	return len(r.Accelerators) > 0
}

func (r *CapabilityReport) degrade(probe string, err error) {
	d := Degradation{Probe: probe, Reason: err.Error()}
	r.Degradations = append(r.Degradations, d)
	metrics.RecordProbeDegradation(probe)
	logger.Log.Debug("probe degraded", "probe", probe, "reason", d.Reason)
}

// RuntimeInspector is the part of the inference runtime the prober needs.
type RuntimeInspector interface {
	LibraryPath() string
	Version() (string, error)
	AvailableBackends() ([]engine.Backend, error)
}

type Prober struct {
	Runtime     RuntimeInspector
	Debug       bool
	Timeout     time.Duration
	LookPath    func(file string) (string, error)
	RunCommand  func(ctx context.Context, name string, args ...string) ([]byte, error)
	Enumerate   func() ([]device.Info, error)
	ProcessRSS  func() (int64, error)
	Getenv      func(key string) string
	CUDABuild   bool
	StaticPaths []string
}

func New(rt RuntimeInspector, debug bool) *Prober {
	return &Prober{
		Runtime:     rt,
		Debug:       debug,
		Timeout:     DefaultTimeout,
		LookPath:    exec.LookPath,
		RunCommand:  runCommand,
		Enumerate:   device.Enumerate,
		ProcessRSS:  device.ProcessRSS,
		Getenv:      os.Getenv,
		CUDABuild:   device.CUDABuild(),
		StaticPaths: driverToolPaths,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (p *Prober) Probe(ctx context.Context) CapabilityReport {
	r := CapabilityReport{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		CUDABuild: p.CUDABuild,
		CUDAPath:  p.Getenv("CUDA_PATH"),
	}

	p.probeRuntime(&r)
	r.Accelerators = p.probeDriverTool(ctx, &r)
	if r.CUDABuild {
		p.probeCUDARuntime(&r)
	}

	if _, err := p.ProcessRSS(); err != nil {
		r.degrade("memory", err)
	} else {
		r.MemoryStats = true
	}

	logger.Log.Debug("environment probed",
		"backends", r.Backends,
		"accelerators", len(r.Accelerators),
		"driver_tool", r.DriverTool.Found,
		"degradations", len(r.Degradations))
	return r
}

func (p *Prober) probeRuntime(r *CapabilityReport) {
	if p.Runtime == nil {
		r.degrade("runtime", fmt.Errorf("no inference runtime configured"))
		return
	}
	r.RuntimeLibrary = p.Runtime.LibraryPath()

	version, err := p.Runtime.Version()
	if err != nil {
		r.degrade("runtime", err)
		return
	}
	r.RuntimeAvailable = true
	r.RuntimeVersion = version

	backends, err := p.Runtime.AvailableBackends()
	if err != nil {
		r.degrade("backends", err)
		return
	}
	r.Backends = backends
}

func (p *Prober) locateDriverTool() (string, bool) {
	if path, err := p.LookPath(DriverTool); err == nil {
		return path, true
	}
	for _, path := range p.StaticPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// probeDriverTool returns the accelerators listed by the driver tool.
func (p *Prober) probeDriverTool(ctx context.Context, r *CapabilityReport) []device.Info {
	path, ok := p.locateDriverTool()
	if !ok {
		r.degrade("driver_tool", fmt.Errorf("%s not found on PATH", DriverTool))
		return nil
	}
	r.DriverTool = ToolStatus{Found: true, Path: path}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.RunCommand(ctx, path,
		"--query-gpu=index,name,memory.total,driver_version",
		"--format=csv,noheader,nounits")
	var infos []device.Info
	if err != nil {
		r.degrade("driver_tool", fmt.Errorf("%s query failed: %w", DriverTool, err))
	} else if infos, err = ParseDriverQuery(out); err != nil {
		r.degrade("driver_tool", err)
	}

	if p.Debug {
		plain, err := p.RunCommand(ctx, path)
		if err != nil {
			r.degrade("driver_tool", fmt.Errorf("%s status failed: %w", DriverTool, err))
		} else {
			r.DriverTool.Head = head(plain, headLines)
		}
	}
	return infos
}

// probeCUDARuntime replaces the driver tool listing with the CUDA runtime's
// own enumeration. When enumeration fails the driver tool listing is kept.
func (p *Prober) probeCUDARuntime(r *CapabilityReport) {
	infos, err := p.Enumerate()
	if err != nil {
		r.degrade("cuda", err)
		return
	}
	r.Accelerators = infos
}

// ParseDriverQuery parses nvidia-smi CSV output of
// index,name,memory.total,driver_version with memory in MiB. Malformed lines
// are skipped and reported in the returned error.
func ParseDriverQuery(out []byte) ([]device.Info, error) {
	var infos []device.Info
	var bad []string

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			bad = append(bad, line)
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			bad = append(bad, line)
			continue
		}
		info := device.Info{Index: index, Name: fields[1], Driver: fields[3]}
		if mib, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			info.MemoryTotalBytes = mib << 20
		}
		infos = append(infos, info)
	}
	if err := sc.Err(); err != nil {
		return infos, err
	}
	if len(bad) > 0 {
		return infos, fmt.Errorf("unparseable %s lines: %q", DriverTool, bad)
	}
	return infos, nil
}

func head(out []byte, n int) []string {
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
