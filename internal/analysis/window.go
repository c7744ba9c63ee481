package analysis

// LoadStatus grades a running mean against configured thresholds
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	LoadHigh
	LoadCritical
)

func (s LoadStatus) String() string {
	switch s {
	case LoadHigh:
		return "high"
	case LoadCritical:
		return "critical"
	default:
		return "ok"
	}
}

// SlidingWindow keeps the mean of the last N samples in O(1) per sample.
// It is used for processing latency (seconds) and callback utilization (ratio).
type SlidingWindow struct {
	samples  []float64
	next     int
	count    int
	sum      float64
	high     float64
	critical float64
}

// NewSlidingWindow creates a window of the given capacity. A critical
// threshold <= 0 disables the critical grade.
func NewSlidingWindow(capacity int, high, critical float64) *SlidingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &SlidingWindow{
		samples:  make([]float64, capacity),
		high:     high,
		critical: critical,
	}
}

// Add records a sample, evicting the oldest once the window is full
func (w *SlidingWindow) Add(v float64) {
	if w.count == len(w.samples) {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % len(w.samples)
}

// Mean returns the mean of the retained samples, 0 when empty
func (w *SlidingWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Peak returns the largest retained sample
func (w *SlidingWindow) Peak() float64 {
	if w.count == 0 {
		return 0
	}
	peak := w.samples[0]
	for i := 1; i < w.count; i++ {
		if w.samples[i] > peak {
			peak = w.samples[i]
		}
	}
	return peak
}

func (w *SlidingWindow) Count() int { return w.count }

func (w *SlidingWindow) Capacity() int { return len(w.samples) }

// Status grades the running mean, not the latest sample
func (w *SlidingWindow) Status() LoadStatus {
	mean := w.Mean()
	switch {
	case w.critical > 0 && mean >= w.critical:
		return LoadCritical
	case w.high > 0 && mean >= w.high:
		return LoadHigh
	default:
		return LoadOK
	}
}

// Reset empties the window, keeping capacity and thresholds
func (w *SlidingWindow) Reset() {
	for i := range w.samples {
		w.samples[i] = 0
	}
	w.next = 0
	w.count = 0
	w.sum = 0
}
