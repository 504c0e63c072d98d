package probe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
)

type fakeRuntime struct {
	version    string
	versionErr error
	backends   []engine.Backend
}

func (f *fakeRuntime) LibraryPath() string { return "/opt/ort/libonnxruntime.so" }

func (f *fakeRuntime) Version() (string, error) { return f.version, f.versionErr }

func (f *fakeRuntime) AvailableBackends() ([]engine.Backend, error) { return f.backends, nil }

const smiQuery = "0, NVIDIA A100-SXM4-40GB, 40960, 535.104.05\n1, NVIDIA A100-SXM4-40GB, 40960, 535.104.05\n"

func newTestProber(rt RuntimeInspector, smi string, smiErr error) *Prober {
	p := New(rt, false)
	p.CUDABuild = false
	p.StaticPaths = nil
	p.Getenv = func(string) string { return "/usr/local/cuda" }
	p.ProcessRSS = func() (int64, error) { return 1 << 20, nil }
	p.LookPath = func(string) (string, error) {
		if smi == "" && smiErr == nil {
			return "", errors.New("not found")
		}
		return "/usr/bin/nvidia-smi", nil
	}
	p.RunCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) == 0 {
			return []byte("line1\nline2\n"), nil
		}
		return []byte(smi), smiErr
	}
	return p
}

func TestProbeWithAccelerators(t *testing.T) {
	rt := &fakeRuntime{version: "1.19.0", backends: []engine.Backend{engine.BackendCPU, engine.BackendCUDA}}
	r := newTestProber(rt, smiQuery, nil).Probe(context.Background())

	if !r.RuntimeAvailable || r.RuntimeVersion != "1.19.0" {
		t.Errorf("unexpected runtime fields %+v", r)
	}
	if !r.HasBackend(engine.BackendCUDA) {
		t.Error("expected CUDA backend")
	}
	if !r.AcceleratorRuntime() || len(r.Accelerators) != 2 {
		t.Fatalf("expected 2 accelerators, got %v", r.Accelerators)
	}
	if r.Accelerators[1].Index != 1 || r.Accelerators[0].MemoryTotalBytes != 40960<<20 {
		t.Errorf("unexpected accelerator %+v", r.Accelerators)
	}
	if !r.DriverTool.Found || r.CUDAPath != "/usr/local/cuda" || !r.MemoryStats {
		t.Errorf("unexpected report %+v", r)
	}
	if len(r.DriverTool.Head) != 0 {
		t.Error("status head should only be captured in debug mode")
	}
	if len(r.Degradations) != 0 {
		t.Errorf("expected no degradations, got %v", r.Degradations)
	}
}

func TestProbeDegradesWithoutRuntimeOrTool(t *testing.T) {
	rt := &fakeRuntime{versionErr: errors.New("libonnxruntime.so: cannot open shared object file")}
	p := newTestProber(rt, "", nil)
	p.ProcessRSS = func() (int64, error) { return 0, errors.New("no procfs") }

	r := p.Probe(context.Background())

	if r.RuntimeAvailable || len(r.Backends) != 0 {
		t.Errorf("runtime should be unavailable: %+v", r)
	}
	if r.AcceleratorRuntime() || r.DriverTool.Found || r.MemoryStats {
		t.Errorf("unexpected capabilities %+v", r)
	}

	probes := map[string]bool{}
	for _, d := range r.Degradations {
		probes[d.Probe] = true
	}
	for _, want := range []string{"runtime", "driver_tool", "memory"} {
		if !probes[want] {
			t.Errorf("expected %s degradation, got %v", want, r.Degradations)
		}
	}
}

func TestProbeDriverToolFailure(t *testing.T) {
	rt := &fakeRuntime{version: "1.19.0", backends: []engine.Backend{engine.BackendCPU}}
	r := newTestProber(rt, "", errors.New("exit status 9")).Probe(context.Background())

	if !r.DriverTool.Found {
		t.Error("tool was located")
	}
	if r.AcceleratorRuntime() {
		t.Error("failed query must leave the accelerator list empty")
	}
	if len(r.Degradations) != 1 || r.Degradations[0].Probe != "driver_tool" {
		t.Errorf("unexpected degradations %v", r.Degradations)
	}
}

func TestProbeDebugCapturesHead(t *testing.T) {
	rt := &fakeRuntime{version: "1.19.0", backends: []engine.Backend{engine.BackendCPU}}
	p := newTestProber(rt, smiQuery, nil)
	p.Debug = true

	r := p.Probe(context.Background())
	if len(r.DriverTool.Head) != 2 || r.DriverTool.Head[0] != "line1" {
		t.Errorf("unexpected head %q", r.DriverTool.Head)
	}
}

func TestProbeCUDABuildEnumerates(t *testing.T) {
	rt := &fakeRuntime{version: "1.19.0", backends: []engine.Backend{engine.BackendCPU, engine.BackendCUDA}}
	p := newTestProber(rt, smiQuery, nil)
	p.CUDABuild = true
	p.Enumerate = func() ([]device.Info, error) {
		return []device.Info{{Index: 0, Name: "runtime-enumerated"}}, nil
	}

	r := p.Probe(context.Background())
	if len(r.Accelerators) != 1 || r.Accelerators[0].Name != "runtime-enumerated" {
		t.Errorf("expected CUDA runtime enumeration, got %v", r.Accelerators)
	}
}

func TestProbeCUDABuildKeepsDriverListingWhenEnumerationFails(t *testing.T) {
	rt := &fakeRuntime{version: "1.19.0", backends: []engine.Backend{engine.BackendCPU, engine.BackendCUDA}}
	p := newTestProber(rt, smiQuery, nil)
	p.CUDABuild = true
	p.Enumerate = func() ([]device.Info, error) {
		return nil, errors.New("cudaGetDeviceCount failed: CUDA driver version is insufficient")
	}

	r := p.Probe(context.Background())
	if len(r.Accelerators) != 2 || r.Accelerators[1].Name != "NVIDIA A100-SXM4-40GB" {
		t.Errorf("expected driver tool listing as fallback, got %v", r.Accelerators)
	}
	found := false
	for _, d := range r.Degradations {
		if d.Probe == "cuda" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected cuda degradation, got %v", r.Degradations)
	}
}

func TestParseDriverQuery(t *testing.T) {
	infos, err := ParseDriverQuery([]byte(smiQuery + "\n"))
	if err != nil {
		t.Fatalf("ParseDriverQuery failed: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "NVIDIA A100-SXM4-40GB" || infos[0].Driver != "535.104.05" {
		t.Errorf("unexpected infos %+v", infos)
	}

	infos, err = ParseDriverQuery([]byte("garbage\n0, T4, 15360, 550.54\n"))
	if err == nil {
		t.Error("expected error for malformed line")
	}
	if len(infos) != 1 || infos[0].Name != "T4" {
		t.Errorf("well-formed lines should still parse, got %+v", infos)
	}
}

func TestDump(t *testing.T) {
	r := CapabilityReport{
		OS: "linux", Arch: "amd64", GoVersion: "go1.25.5", NumCPU: 8,
		RuntimeAvailable: true, RuntimeVersion: "1.19.0",
		Backends:     []engine.Backend{engine.BackendCPU},
		Degradations: []Degradation{{Probe: "driver_tool", Reason: "nvidia-smi not found on PATH"}},
	}

	var buf bytes.Buffer
	Dump(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"Environment diagnostics",
		"1.19.0",
		"CPUExecutionProvider",
		"nvidia-smi not found on PATH",
		"Common problems",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}

	r.Accelerators = []device.Info{{Index: 0, Name: "T4", MemoryTotalBytes: 15360 << 20, Driver: "550.54"}}
	buf.Reset()
	Dump(&buf, r)
	if strings.Contains(buf.String(), "Common problems") {
		t.Error("hint list should be omitted when an accelerator is visible")
	}
	if !strings.Contains(buf.String(), "[0] T4, 15360 MiB") {
		t.Errorf("expected accelerator line:\n%s", buf.String())
	}
}

func TestDegradationError(t *testing.T) {
	d := Degradation{Probe: "cuda", Reason: "no device"}
	if d.Error() != "probe cuda degraded: no device" {
		t.Errorf("unexpected message %q", d.Error())
	}
}
