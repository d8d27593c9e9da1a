package upload

import (
	"testing"
	"time"
)

func TestSampleWindowMean(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := newSampleWindow(3, start)

	if w.mean() != 0 {
		t.Fatalf("expected zero mean without samples, got %v", w.mean())
	}

	w.observe(start.Add(1*time.Second), 100) // 100 B/s
	w.observe(start.Add(2*time.Second), 300) // 300 B/s
	if got := w.mean(); got != 200 {
		t.Fatalf("expected mean 200, got %v", got)
	}
}

func TestSampleWindowEvictsOldest(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := newSampleWindow(2, start)

	w.observe(start.Add(1*time.Second), 100)
	w.observe(start.Add(2*time.Second), 200)
	w.observe(start.Add(3*time.Second), 400)

	// Only the 200 and 400 B/s samples remain.
	if got := w.mean(); got != 300 {
		t.Fatalf("expected mean 300 after eviction, got %v", got)
	}
}

func TestSampleWindowSkipsZeroElapsed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := newSampleWindow(4, start)

	w.observe(start, 100)
	if w.count != 0 {
		t.Fatalf("expected zero-elapsed sample to be skipped")
	}

	w.observe(start.Add(-time.Second), 100)
	if w.count != 0 {
		t.Fatalf("expected negative-elapsed sample to be skipped")
	}
}

func TestSampleWindowEstimate(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := newSampleWindow(4, start)

	if _, ok := w.estimate(1000); ok {
		t.Fatalf("expected no estimate without throughput samples")
	}

	w.observe(start.Add(time.Second), 100)
	eta, ok := w.estimate(250)
	if !ok {
		t.Fatalf("expected an estimate with a known speed")
	}
	if eta != 2500*time.Millisecond {
		t.Fatalf("expected ETA 2.5s, got %s", eta)
	}

	eta, ok = w.estimate(0)
	if !ok || eta != 0 {
		t.Fatalf("expected zero ETA with nothing remaining, got %s ok=%v", eta, ok)
	}
}

func TestPercentOf(t *testing.T) {
	if got := percentOf(5, 10); got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
	if got := percentOf(10, 10); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	if got := percentOf(3, 0); got != 0 {
		t.Fatalf("expected 0 for zero total, got %v", got)
	}
}
