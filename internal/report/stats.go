// Package report reduces latency samples to summary statistics and emits the
// console report and the result artifact.
package report

import (
	"fmt"
	"math"
	"sort"
)

// IncompleteSampleError means the sample set does not match the requested
// iteration count. No statistics are computed from a partial run.
type IncompleteSampleError struct {
	Got  int
	Want int
}

func (e *IncompleteSampleError) Error() string {
	return fmt.Sprintf("incomplete sample set: got %d samples, want %d", e.Got, e.Want)
}

// Result holds latency statistics in milliseconds and throughput in calls per second.
type Result struct {
	Count      int
	Mean       float64
	Min        float64
	Max        float64
	Median     float64
	P95        float64
	P99        float64
	Throughput float64
}

// Stats returns the latency figures keyed by name.
func (r Result) Stats() map[string]float64 {
	return map[string]float64{
		"mean":   r.Mean,
		"min":    r.Min,
		"max":    r.Max,
		"median": r.Median,
		"p95":    r.P95,
		"p99":    r.P99,
	}
}

// Summarize computes a Result from exactly want samples.
func Summarize(samples []float64, want int) (Result, error) {
	if len(samples) != want || want == 0 {
		return Result{}, &IncompleteSampleError{Got: len(samples), Want: want}
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(len(sorted))

	r := Result{
		Count:  len(sorted),
		Mean:   mean,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: percentileSorted(sorted, 50),
		P95:    percentileSorted(sorted, 95),
		P99:    percentileSorted(sorted, 99),
	}
	if mean > 0 {
		r.Throughput = 1000 / mean
	}
	return r, nil
}

// percentileSorted interpolates linearly between the closest ranks of sorted,
// rank = p/100*(n-1).
func percentileSorted(sorted []float64, p float64) float64 {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
