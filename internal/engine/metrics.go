package engine

import "sync"

// DefaultMetricsWindow is the number of samples each phase recorder keeps.
const DefaultMetricsWindow = 60

// FrameMetrics tracks rolling update-phase and render-phase durations. The
// two recorders are independent because update ticks and render triggers
// happen at different cadences. Recorded only by the loop goroutine, read
// freely from any goroutine; reset only on explicit caller action.
type FrameMetrics struct {
	update PhaseRecorder
	render PhaseRecorder
}

// NewFrameMetrics creates metrics with the given window capacity per phase.
// window <= 0 selects DefaultMetricsWindow.
func NewFrameMetrics(window int) *FrameMetrics {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	m := &FrameMetrics{}
	m.update.samples = make([]float64, window)
	m.render.samples = make([]float64, window)
	return m
}

// Update returns the update-phase recorder.
func (m *FrameMetrics) Update() *PhaseRecorder { return &m.update }

// Render returns the render-phase recorder.
func (m *FrameMetrics) Render() *PhaseRecorder { return &m.render }

// Reset clears both windows.
func (m *FrameMetrics) Reset() {
	m.update.Reset()
	m.render.Reset()
}

// Snapshot copies both phase summaries at once.
func (m *FrameMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Update: m.update.Summary(),
		Render: m.render.Summary(),
	}
}

// MetricsSnapshot is a point-in-time copy of both phase windows.
type MetricsSnapshot struct {
	Update PhaseSummary `json:"update"`
	Render PhaseSummary `json:"render"`
}

// PhaseSummary is a point-in-time copy of one phase window.
type PhaseSummary struct {
	AvgMs   float64 `json:"avgMs"`
	MinMs   float64 `json:"minMs"`
	MaxMs   float64 `json:"maxMs"`
	Samples int     `json:"samples"`
}

// PhaseRecorder keeps a fixed-capacity window of phase durations in
// milliseconds with a streaming average, min and max. When the window is
// full the oldest sample is evicted; evicting the current extremum triggers
// a full rescan, an acceptable O(capacity) cost at frame rates.
type PhaseRecorder struct {
	mu      sync.RWMutex
	samples []float64
	next    int // write/eviction cursor
	count   int
	sum     float64
	min     float64
	max     float64
}

// Record adds one duration sample, evicting the oldest when full.
func (r *PhaseRecorder) Record(ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.samples) {
		r.samples[r.next] = ms
		r.next = (r.next + 1) % len(r.samples)
		r.count++
		r.sum += ms
		if r.count == 1 || ms < r.min {
			r.min = ms
		}
		if r.count == 1 || ms > r.max {
			r.max = ms
		}
		return
	}

	old := r.samples[r.next]
	r.samples[r.next] = ms
	r.next = (r.next + 1) % len(r.samples)
	r.sum += ms - old

	// Evicting the current extremum invalidates the cached value.
	if old == r.min || old == r.max {
		r.rescan()
		return
	}
	if ms < r.min {
		r.min = ms
	}
	if ms > r.max {
		r.max = ms
	}
}

// rescan recomputes min/max from the live window. Caller holds the lock.
func (r *PhaseRecorder) rescan() {
	r.min, r.max = r.samples[0], r.samples[0]
	for _, s := range r.samples[1:r.count] {
		if s < r.min {
			r.min = s
		}
		if s > r.max {
			r.max = s
		}
	}
}

// Average returns the mean of the window, or 0 with no samples.
func (r *PhaseRecorder) Average() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// Min returns the smallest sample in the window, or 0 with no samples.
func (r *PhaseRecorder) Min() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return 0
	}
	return r.min
}

// Max returns the largest sample in the window, or 0 with no samples.
func (r *PhaseRecorder) Max() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return 0
	}
	return r.max
}

// Count returns the number of live samples, capped at the window size.
func (r *PhaseRecorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Reset drops all samples.
func (r *PhaseRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.count = 0
	r.sum = 0
	r.min = 0
	r.max = 0
}

// Summary copies the current aggregates.
func (r *PhaseRecorder) Summary() PhaseSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := PhaseSummary{Samples: r.count}
	if r.count > 0 {
		s.AvgMs = r.sum / float64(r.count)
		s.MinMs = r.min
		s.MaxMs = r.max
	}
	return s
}
