// Package bench drives warmup and timed inference loops and collects
// per-call latency samples in milliseconds.
package bench

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/23skdu/longbow-ortbench/internal/device"
	"github.com/23skdu/longbow-ortbench/internal/engine"
	"github.com/23skdu/longbow-ortbench/internal/logger"
	"github.com/23skdu/longbow-ortbench/internal/metrics"
)

var ErrRunnerUsed = errors.New("runner has already run")

// Target is the inference handle the runner drives.
type Target interface {
	Prepare(input engine.Tensor) error
	Run() error
}

// Synchronizer is the device barrier issued around timed calls.
type Synchronizer interface {
	Kind() device.Kind
	Synchronize() error
}

type Options struct {
	Warmup     int
	Iterations int
	Shape      []int64
	Seed       int64
	// Progress receives a progress bar during the timed loop when non-nil.
	Progress io.Writer
}

type Runner struct {
	opts      Options
	state     atomic.Int32
	completed atomic.Int64
	log       *logger.Logger
}

func New(opts Options, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Log
	}
	return &Runner{opts: opts, log: log}
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

// Completed is the number of measured calls finished so far.
func (r *Runner) Completed() int64 {
	return r.completed.Load()
}

func (r *Runner) Iterations() int {
	return r.opts.Iterations
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	metrics.RecordRunnerState(int(s))
	r.log.Debug("runner state", "state", s.String())
}

// Run executes warmup then the measured loop on target. On accelerators a
// barrier is issued before and after every measured call; warmup calls are
// never synchronized. Any failure aborts the run and no samples are returned.
func (r *Runner) Run(target Target, dev Synchronizer) ([]float64, error) {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateWarming)) {
		return nil, ErrRunnerUsed
	}
	metrics.RecordRunnerState(int(StateWarming))

	input := GenerateInput(r.opts.Shape, r.opts.Seed)
	if err := target.Prepare(input); err != nil {
		return nil, r.abortWarmup(0, err)
	}

	for i := 1; i <= r.opts.Warmup; i++ {
		if err := target.Run(); err != nil {
			return nil, r.abortWarmup(i, err)
		}
		metrics.RecordWarmupCall()
		if i == 1 {
			r.log.Info("first inference succeeded")
		}
	}
	if r.opts.Warmup > 0 {
		r.log.Debug("warmup complete", "calls", r.opts.Warmup)
	}

	r.setState(StateMeasuring)
	barrier := dev != nil && dev.Kind() == device.KindAccelerator

	bar := newProgressBar(r.opts.Progress, r.opts.Iterations)
	samples := make([]float64, 0, r.opts.Iterations)
	for i := 1; i <= r.opts.Iterations; i++ {
		elapsed, err := r.measure(target, dev, barrier)
		if err != nil {
			bar.finish()
			r.setState(StateAborted)
			metrics.RecordCallFailure("measure")
			return nil, &MeasuredCallError{Iteration: i, Err: err}
		}
		metrics.RecordMeasuredCall(elapsed)
		samples = append(samples, float64(elapsed.Nanoseconds())/1e6)
		r.completed.Add(1)
		bar.update(i)
	}
	bar.finish()

	r.setState(StateDone)
	return samples, nil
}

func (r *Runner) abortWarmup(call int, err error) error {
	r.setState(StateAborted)
	metrics.RecordCallFailure("warmup")
	return &WarmupError{Call: call, Err: err}
}

func (r *Runner) measure(target Target, dev Synchronizer, barrier bool) (time.Duration, error) {
	if barrier {
		t := time.Now()
		if err := dev.Synchronize(); err != nil {
			return 0, fmt.Errorf("barrier before call: %w", err)
		}
		metrics.RecordBarrier(time.Since(t))
	}

	start := time.Now()
	if err := target.Run(); err != nil {
		return 0, err
	}
	if barrier {
		if err := dev.Synchronize(); err != nil {
			return 0, fmt.Errorf("barrier after call: %w", err)
		}
	}
	return time.Since(start), nil
}

type progressBar struct {
	w     io.Writer
	model progress.Model
	total int
	step  int
	last  int
}

func newProgressBar(w io.Writer, total int) *progressBar {
	step := total / 100
	if step < 1 {
		step = 1
	}
	return &progressBar{
		w:     w,
		model: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total: total,
		step:  step,
	}
}

func (p *progressBar) update(done int) {
	if p.w == nil || (done-p.last < p.step && done != p.total) {
		return
	}
	p.last = done
	fmt.Fprintf(p.w, "\r%s %d/%d", p.model.ViewAs(float64(done)/float64(p.total)), done, p.total)
}

func (p *progressBar) finish() {
	if p.w != nil && p.last > 0 {
		fmt.Fprintln(p.w)
	}
}
