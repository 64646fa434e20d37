// Package stats tracks per-measurement transfer statistics: point, byte and
// chunk counters plus a DDSketch of chunk round-trip latencies, summarized as
// percentiles in the final run tally.
package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// relativeAccuracy is the DDSketch relative accuracy for latency percentiles.
const relativeAccuracy = 0.01

// Transfer accumulates statistics for one measurement's dump or restore.
type Transfer struct {
	mu sync.Mutex

	measurement string
	started     time.Time

	points int64
	bytes  int64
	chunks int64

	sketch *ddsketch.DDSketch
}

// NewTransfer creates a Transfer for one measurement.
func NewTransfer(measurement string) *Transfer {
	t := &Transfer{
		measurement: measurement,
		started:     time.Now(),
	}
	// Only fails for invalid accuracy; latencies then go unsketched.
	if sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy); err == nil {
		t.sketch = sketch
	}
	return t
}

// AddChunk records one transferred chunk.
func (t *Transfer) AddChunk(points int, bytes int64, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.points += int64(points)
	t.bytes += bytes
	t.chunks++
	if t.sketch != nil {
		t.sketch.Add(latency.Seconds() * 1000) // milliseconds
	}
}

// Points returns the accumulated point count.
func (t *Transfer) Points() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.points
}

// Summary is the final statistics of one measurement's transfer.
type Summary struct {
	Measurement string
	Points      int64
	Bytes       int64
	Chunks      int64
	Elapsed     time.Duration

	// Chunk latency percentiles in milliseconds; zero when no chunks
	// were transferred.
	P50Ms float64
	P95Ms float64
	P99Ms float64
}

// Summary returns the statistics accumulated so far.
func (t *Transfer) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Measurement: t.measurement,
		Points:      t.points,
		Bytes:       t.bytes,
		Chunks:      t.chunks,
		Elapsed:     time.Since(t.started),
	}
	if t.sketch != nil && t.chunks > 0 {
		if v, err := t.sketch.GetValueAtQuantile(0.50); err == nil {
			s.P50Ms = v
		}
		if v, err := t.sketch.GetValueAtQuantile(0.95); err == nil {
			s.P95Ms = v
		}
		if v, err := t.sketch.GetValueAtQuantile(0.99); err == nil {
			s.P99Ms = v
		}
	}
	return s
}

// Failure records one measurement that did not complete.
type Failure struct {
	Measurement string
	Err         error
}

// Tally is the outcome of a whole run: which measurements succeeded with
// what statistics, and which failed with what error. Safe for concurrent
// use by parallel measurement workers.
type Tally struct {
	mu        sync.Mutex
	succeeded []Summary
	failed    []Failure
}

// AddSuccess records a completed measurement.
func (t *Tally) AddSuccess(s Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded = append(t.succeeded, s)
}

// AddFailure records a failed measurement.
func (t *Tally) AddFailure(measurement string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = append(t.failed, Failure{Measurement: measurement, Err: err})
}

// Succeeded returns the completed measurements' summaries.
func (t *Tally) Succeeded() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Summary, len(t.succeeded))
	copy(out, t.succeeded)
	return out
}

// Failed returns the failed measurements.
func (t *Tally) Failed() []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Failure, len(t.failed))
	copy(out, t.failed)
	return out
}

// HasFailures reports whether any measurement failed.
func (t *Tally) HasFailures() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failed) > 0
}

// Log writes the tally to the given logger: one line per measurement and a
// final totals line.
func (t *Tally) Log(log *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var totalPoints, totalBytes int64
	for _, s := range t.succeeded {
		totalPoints += s.Points
		totalBytes += s.Bytes
		log.Info("measurement done",
			"measurement", s.Measurement,
			"points", s.Points,
			"bytes", s.Bytes,
			"chunks", s.Chunks,
			"elapsed", s.Elapsed.Round(time.Millisecond),
			"chunk_p50_ms", s.P50Ms,
			"chunk_p95_ms", s.P95Ms,
			"chunk_p99_ms", s.P99Ms,
		)
	}
	for _, f := range t.failed {
		log.Error("measurement failed", "measurement", f.Measurement, "error", f.Err)
	}
	log.Info("run finished",
		"succeeded", len(t.succeeded),
		"failed", len(t.failed),
		"points", totalPoints,
		"bytes", totalBytes,
	)
}
