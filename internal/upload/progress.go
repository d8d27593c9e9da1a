package upload

import "time"

// sampleWindow keeps a fixed-capacity ring of throughput samples. A sample is
// recorded per accepted chunk as bytes/elapsed since the previous acceptance;
// the oldest sample is evicted once the ring is full.
type sampleWindow struct {
	samples []float64
	next    int
	count   int
	lastAt  time.Time
}

func newSampleWindow(capacity int, start time.Time) *sampleWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &sampleWindow{
		samples: make([]float64, capacity),
		lastAt:  start,
	}
}

// observe records one throughput sample. Zero or negative elapsed time
// (possible under very fast successive submissions) is skipped rather than
// producing an infinite rate.
func (w *sampleWindow) observe(now time.Time, bytes int64) {
	elapsed := now.Sub(w.lastAt)
	if elapsed <= 0 {
		return
	}
	w.lastAt = now

	w.samples[w.next] = float64(bytes) / elapsed.Seconds()
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

// mean returns the smoothed throughput in bytes per second, 0 with no samples.
func (w *sampleWindow) mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.samples[i]
	}
	return sum / float64(w.count)
}

// estimate derives the ETA for the remaining bytes. A zero or unknown speed
// yields no estimate instead of an infinite one.
func (w *sampleWindow) estimate(remaining int64) (time.Duration, bool) {
	speed := w.mean()
	if speed <= 0 {
		return 0, false
	}
	if remaining <= 0 {
		return 0, true
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second)), true
}

func percentOf(uploaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(uploaded) / float64(total) * 100
}
