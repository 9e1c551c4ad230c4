// Package summary aggregates the throughput samples of one benchmark run.
package summary

import (
	"fmt"
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// scale keeps two decimals of TPS in the integer histogram.
const scale = 100

const maxTrackable = 1_000_000 * scale

// Summary is the TPS distribution of a finished run.
type Summary struct {
	Samples int64   `json:"samples"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
}

// String renders the summary as one console line.
func (s Summary) String() string {
	return fmt.Sprintf("Run summary: %d samples, avg %.2f TPS (min %.2f, max %.2f, p50 %.2f, p95 %.2f, p99 %.2f)",
		s.Samples, s.Mean, s.Min, s.Max, s.P50, s.P95, s.P99)
}

// Recorder collects TPS samples. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	min  float64
	max  float64
	sum  float64
	n    int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{hist: hdrhistogram.New(1, maxTrackable, 3)}
}

// Record adds one sample. Negative and non-finite samples are ignored.
func (r *Recorder) Record(tps float64) {
	if tps < 0 || math.IsNaN(tps) || math.IsInf(tps, 0) {
		return
	}
	v := int64(math.Round(tps * scale))
	if v > maxTrackable {
		v = maxTrackable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.hist.RecordValue(v)
	if r.n == 0 || tps < r.min {
		r.min = tps
	}
	if r.n == 0 || tps > r.max {
		r.max = tps
	}
	r.sum += tps
	r.n++
}

// Count returns the number of recorded samples.
func (r *Recorder) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Summary returns the distribution so far; false when nothing was recorded.
func (r *Recorder) Summary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return Summary{}, false
	}
	return Summary{
		Samples: r.n,
		Min:     r.min,
		Max:     r.max,
		Mean:    r.sum / float64(r.n),
		P50:     float64(r.hist.ValueAtQuantile(50)) / scale,
		P95:     float64(r.hist.ValueAtQuantile(95)) / scale,
		P99:     float64(r.hist.ValueAtQuantile(99)) / scale,
	}, true
}

// Reset discards all samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist.Reset()
	r.min, r.max, r.sum, r.n = 0, 0, 0, 0
}
