package stats

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTransferCounters(t *testing.T) {
	tr := NewTransfer("cpu")
	tr.AddChunk(5000, 120000, 10*time.Millisecond)
	tr.AddChunk(5000, 118000, 20*time.Millisecond)
	tr.AddChunk(123, 3000, 100*time.Millisecond)

	s := tr.Summary()
	if s.Measurement != "cpu" {
		t.Errorf("measurement = %q", s.Measurement)
	}
	if s.Points != 10123 {
		t.Errorf("points = %d, want 10123", s.Points)
	}
	if s.Bytes != 241000 {
		t.Errorf("bytes = %d, want 241000", s.Bytes)
	}
	if s.Chunks != 3 {
		t.Errorf("chunks = %d, want 3", s.Chunks)
	}
}

func TestTransferPercentiles(t *testing.T) {
	tr := NewTransfer("cpu")
	for i := 1; i <= 100; i++ {
		tr.AddChunk(1, 1, time.Duration(i)*time.Millisecond)
	}

	s := tr.Summary()
	// DDSketch guarantees 1% relative accuracy.
	if s.P50Ms < 45 || s.P50Ms > 55 {
		t.Errorf("p50 = %v, want ~50", s.P50Ms)
	}
	if s.P99Ms < 95 || s.P99Ms > 101 {
		t.Errorf("p99 = %v, want ~99", s.P99Ms)
	}
	if s.P50Ms > s.P95Ms || s.P95Ms > s.P99Ms {
		t.Errorf("percentiles not monotonic: %v %v %v", s.P50Ms, s.P95Ms, s.P99Ms)
	}
}

func TestTransferEmpty(t *testing.T) {
	s := NewTransfer("empty").Summary()
	if s.Points != 0 || s.Chunks != 0 || s.P50Ms != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestTallyConcurrent(t *testing.T) {
	var tally Tally
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				tally.AddFailure("m", errors.New("boom"))
			} else {
				tally.AddSuccess(Summary{Measurement: "m", Points: 1})
			}
		}(i)
	}
	wg.Wait()

	if len(tally.Succeeded()) != 15 {
		t.Errorf("succeeded = %d, want 15", len(tally.Succeeded()))
	}
	if len(tally.Failed()) != 5 {
		t.Errorf("failed = %d, want 5", len(tally.Failed()))
	}
	if !tally.HasFailures() {
		t.Error("HasFailures = false")
	}
}
