package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/23skdu/longbow-ortbench/internal/config"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/onnx"
)

// ArtifactWriteError means the result file could not be written. The run is
// still reported on the console.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("failed to write results to %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error {
	return e.Err
}

// Memory is the optional memory section of a report.
type Memory struct {
	HasRSS      bool
	RSSBytes    int64
	HasDevice   bool
	DeviceUsed  int64
	DeviceTotal int64
}

// Run describes the benchmark a Result was measured on.
type Run struct {
	ModelPath  string
	Device     config.Device
	Backend    engine.Backend
	InputShape []int64
	Warmup     int
	Iterations int
	Metadata   *onnx.Metadata
	Fallbacks  []string
	Memory     Memory
}

// ArtifactName is the result file name for a model run on dev.
func ArtifactName(modelPath string, dev config.Device) string {
	return fmt.Sprintf("benchmark_results_%s_%s.txt", filepath.Base(modelPath), dev)
}

// FormatArtifact renders the result file contents.
func FormatArtifact(run Run, res Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Model: %s\n", run.ModelPath)
	fmt.Fprintf(&b, "Device: %s\n", run.Device)
	fmt.Fprintf(&b, "Backend: %s\n", run.Backend)
	fmt.Fprintf(&b, "Input shape: %s\n", config.FormatShape(run.InputShape))
	fmt.Fprintf(&b, "Iterations: %d\n\n", run.Iterations)
	fmt.Fprintln(&b, "Latency (ms):")
	fmt.Fprintf(&b, "Mean: %.4f\n", res.Mean)
	fmt.Fprintf(&b, "Min: %.4f\n", res.Min)
	fmt.Fprintf(&b, "Max: %.4f\n", res.Max)
	fmt.Fprintf(&b, "Median: %.4f\n", res.Median)
	fmt.Fprintf(&b, "P95: %.4f\n", res.P95)
	fmt.Fprintf(&b, "P99: %.4f\n\n", res.P99)
	fmt.Fprintf(&b, "Throughput: %.2f\n", res.Throughput)
	return b.Bytes()
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Faint(true).Width(14)
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func row(label, value string) string {
	return labelStyle.Render(label) + " " + valueStyle.Render(value)
}

func mib(b int64) string {
	return fmt.Sprintf("%.2f MB", float64(b)/(1<<20))
}

// FormatConsole renders the styled console report.
func FormatConsole(run Run, res Result) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Benchmark "+filepath.Base(run.ModelPath)))
	lines = append(lines,
		row("Device", run.Device.String()),
		row("Backend", run.Backend.String()),
		row("Input shape", config.FormatShape(run.InputShape)),
		row("Warmup", fmt.Sprintf("%d", run.Warmup)),
		row("Iterations", fmt.Sprintf("%d", run.Iterations)),
	)
	if md := run.Metadata; md != nil {
		lines = append(lines, row("Producer", strings.TrimSpace(md.ProducerName+" "+md.ProducerVersion)))
		lines = append(lines, row("IR / opset", fmt.Sprintf("%d / %d", md.IRVersion, md.OpsetVersion())))
		graph := md.GraphName
		if graph == "" {
			graph = "-"
		}
		lines = append(lines, row("Graph", fmt.Sprintf("%s (%d nodes, %d initializers)", graph, md.NodeCount, md.InitializerCount)))
	}
	for _, f := range run.Fallbacks {
		lines = append(lines, warnStyle.Render("fallback: "+f))
	}

	lines = append(lines, "", titleStyle.Render("Latency (ms)"),
		row("Mean", fmt.Sprintf("%.4f", res.Mean)),
		row("Min", fmt.Sprintf("%.4f", res.Min)),
		row("Max", fmt.Sprintf("%.4f", res.Max)),
		row("Median", fmt.Sprintf("%.4f", res.Median)),
		row("P95", fmt.Sprintf("%.4f", res.P95)),
		row("P99", fmt.Sprintf("%.4f", res.P99)),
		"",
		row("Throughput", fmt.Sprintf("%.2f /s", res.Throughput)),
	)

	if run.Memory.HasRSS || run.Memory.HasDevice {
		lines = append(lines, "", titleStyle.Render("Memory"))
		if run.Memory.HasRSS {
			lines = append(lines, row("Process RSS", mib(run.Memory.RSSBytes)))
		}
		if run.Memory.HasDevice {
			lines = append(lines,
				row("Device used", mib(run.Memory.DeviceUsed)),
				row("Device total", mib(run.Memory.DeviceTotal)))
		}
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

type Emitter struct {
	Console   io.Writer
	OutputDir string
	Log       *logger.Logger
}

func NewEmitter(console io.Writer, outputDir string) *Emitter {
	return &Emitter{Console: console, OutputDir: outputDir, Log: logger.Log}
}

// Emit writes the console report and the result artifact, returning the
// artifact path. A write failure is logged and returned as an
// ArtifactWriteError; the console report is written regardless.
func (e *Emitter) Emit(run Run, res Result) (string, error) {
	if e.Console != nil {
		fmt.Fprintln(e.Console, FormatConsole(run, res))
	}

	dir := e.OutputDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, ArtifactName(run.ModelPath, run.Device))
	if err := os.WriteFile(path, FormatArtifact(run, res), 0o644); err != nil {
		werr := &ArtifactWriteError{Path: path, Err: err}
		e.Log.Error("result artifact not written", "error", werr)
		return path, werr
	}
	e.Log.Info("results saved", "path", path)
	return path, nil
}
