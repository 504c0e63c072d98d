package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)


var (
	WarmupCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ortbench_warmup_calls_total",
		Help: "The total number of completed warmup inference calls",
	})

	MeasuredCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ortbench_measured_calls_total",
		Help: "The total number of completed measured inference calls",
	})

	CallLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ortbench_call_latency_seconds",
		Help:    "Wall-clock latency of measured inference calls",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
	})

	CallFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ortbench_call_failures_total",
		Help: "Total number of failed inference calls",
	}, []string{"phase"})

	BarrierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ortbench_barrier_duration_seconds",
		Help:    "Time spent in device synchronization barriers",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	RunnerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_runner_state",
		Help: "Current benchmark runner state (0 idle, 1 warming, 2 measuring, 3 done, 4 aborted)",
	})

	DeviceFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ortbench_device_fallbacks_total",
		Help: "Device fallbacks taken while loading the model",
	}, []string{"from", "to"})

	ProbeDegradations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ortbench_probe_degradations_total",
		Help: "Environment probes that could not complete",
	}, []string{"probe"})

	LoadDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_model_load_seconds",
		Help: "Time taken to create the inference session",
	})

	LatencySummary = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ortbench_latency_ms",
		Help: "Summary statistics of the measured latency in milliseconds",
	}, []string{"stat"})

	Throughput = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_throughput_per_second",
		Help: "Inference calls per second derived from the mean latency",
	})

	ProcessRSS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_process_resident_bytes",
		Help: "Resident set size of the benchmark process",
	})

	DeviceMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_device_memory_used_bytes",
		Help: "Accelerator memory in use",
	})

	DeviceMemoryTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ortbench_device_memory_total_bytes",
		Help: "Accelerator memory capacity",
	})
)

func RecordWarmupCall() {
	WarmupCallsTotal.Inc()
}

func RecordMeasuredCall(d time.Duration) {
	MeasuredCallsTotal.Inc()
	CallLatency.Observe(d.Seconds())
}

func RecordCallFailure(phase string) {
	CallFailures.WithLabelValues(phase).Inc()
}

func RecordBarrier(d time.Duration) {
	BarrierDuration.Observe(d.Seconds())
}

func RecordRunnerState(state int) {
	RunnerState.Set(float64(state))
}

func RecordFallback(from, to string) {
	DeviceFallbacks.WithLabelValues(from, to).Inc()
}

func RecordProbeDegradation(probe string) {
	ProbeDegradations.WithLabelValues(probe).Inc()
}

func RecordLoad(d time.Duration) {
	LoadDuration.Set(d.Seconds())
}

// RecordSummary publishes the final statistics. stats maps a stat name such as
// "mean" or "p95" to milliseconds.
func RecordSummary(stats map[string]float64, throughput float64) {
	for name, v := range stats {
		LatencySummary.WithLabelValues(name).Set(v)
	}
	Throughput.Set(throughput)
}

func RecordProcessMemory(rss int64) {
	ProcessRSS.Set(float64(rss))
}

func RecordDeviceMemory(used, total int64) {
	DeviceMemoryUsed.Set(float64(used))
	DeviceMemoryTotal.Set(float64(total))
}

// WriteFile writes every registered collector to path in the Prometheus text format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
