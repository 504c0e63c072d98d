package probe

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/23skdu/longbow-ortbench/internal/engine"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	heading  = color.New(color.Bold).SprintFunc()
)

var commonProblems = []string{
	"NVIDIA driver not installed or not loaded (check nvidia-smi)",
	"ONNX Runtime built without the CUDA execution provider (install the GPU package)",
	"CUDA or cuDNN version does not match the ONNX Runtime build",
	"Shared library not found: set --ort-lib or ONNXRUNTIME_SHARED_LIBRARY_PATH",
	"Running in a container without GPU passthrough (--gpus all)",
}

func mark(ok bool) string {
	if ok {
		return okMark("[ok]")
	}
	return failMark("[--]")
}

// Dump writes a human-readable diagnostics block for r.
func Dump(w io.Writer, r CapabilityReport) {
	fmt.Fprintln(w, heading("=== Environment diagnostics ==="))
	fmt.Fprintf(w, "Host:            %s/%s, %s, %d CPUs\n", r.OS, r.Arch, r.GoVersion, r.NumCPU)

	lib := r.RuntimeLibrary
	if lib == "" {
		lib = "platform default"
	}
	if r.RuntimeAvailable {
		fmt.Fprintf(w, "%s ONNX Runtime   %s (%s)\n", mark(true), r.RuntimeVersion, lib)
	} else {
		fmt.Fprintf(w, "%s ONNX Runtime   unavailable (%s)\n", mark(false), lib)
	}

	names := make([]string, len(r.Backends))
	for i, b := range r.Backends {
		names[i] = b.String()
	}
	fmt.Fprintf(w, "    Backends:     %s\n", orNone(strings.Join(names, ", ")))
	fmt.Fprintf(w, "%s CUDA provider  %v\n", mark(r.HasBackend(engine.BackendCUDA)), r.HasBackend(engine.BackendCUDA))
	fmt.Fprintf(w, "%s CUDA build     %v\n", mark(r.CUDABuild), r.CUDABuild)
	fmt.Fprintf(w, "    CUDA_PATH:    %s\n", orNone(r.CUDAPath))

	if r.DriverTool.Found {
		fmt.Fprintf(w, "%s %s     %s\n", mark(true), DriverTool, r.DriverTool.Path)
	} else {
		fmt.Fprintf(w, "%s %s     not found\n", mark(false), DriverTool)
	}
	for _, line := range r.DriverTool.Head {
		fmt.Fprintf(w, "    | %s\n", line)
	}

	fmt.Fprintf(w, "%s Accelerators   %d\n", mark(r.AcceleratorRuntime()), len(r.Accelerators))
	for _, a := range r.Accelerators {
		fmt.Fprintf(w, "    [%d] %s, %d MiB, driver %s\n", a.Index, a.Name, a.MemoryTotalBytes>>20, a.Driver)
	}
	fmt.Fprintf(w, "%s Memory stats   %v\n", mark(r.MemoryStats), r.MemoryStats)

	if len(r.Degradations) > 0 {
		fmt.Fprintln(w, heading("Degraded probes:"))
		for _, d := range r.Degradations {
			fmt.Fprintf(w, "  %s %s: %s\n", warnMark("!"), d.Probe, d.Reason)
		}
	}

	if !r.AcceleratorRuntime() {
		fmt.Fprintln(w, heading("No accelerator visible. Common problems:"))
		for i, p := range commonProblems {
			fmt.Fprintf(w, "  %d. %s\n", i+1, p)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
