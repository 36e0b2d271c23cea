package present

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSink captures delivered sequence numbers.
type recordingSink struct {
	name   string
	mu     sync.Mutex
	seqs   []uint64
	writes atomic.Uint64
	closes atomic.Uint64
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteFrame(seq uint64, pixels []byte) error {
	s.mu.Lock()
	s.seqs = append(s.seqs, seq)
	s.mu.Unlock()
	s.writes.Add(1)
	return nil
}

func (s *recordingSink) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *recordingSink) sequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.seqs))
	copy(out, s.seqs)
	return out
}

// brokenSink fails every write.
type brokenSink struct {
	writes atomic.Uint64
	closes atomic.Uint64
}

func (s *brokenSink) Name() string { return "broken" }

func (s *brokenSink) WriteFrame(uint64, []byte) error {
	s.writes.Add(1)
	return errors.New("pipe burst")
}

func (s *brokenSink) Close() error {
	s.closes.Add(1)
	return nil
}

func pollUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// TestPresenterDeliversInOrder verifies buffered frames reach the sink in
// sequence order
func TestPresenterDeliversInOrder(t *testing.T) {
	ring, err := NewFrameRing(4, 8)
	if err != nil {
		t.Fatalf("NewFrameRing failed: %v", err)
	}

	frame := make([]byte, 4)
	for i := uint64(1); i <= 5; i++ {
		if !ring.TryWrite(i, frame) {
			t.Fatalf("Write %d should fit", i)
		}
	}

	sink := newRecordingSink("rec")
	p := NewAsyncPresenter(ring)
	p.AddSink(sink)
	p.Start(500)
	defer p.Stop()

	if !pollUntil(t, 2*time.Second, func() bool { return sink.writes.Load() >= 5 }) {
		t.Fatalf("Sink only saw %d frames", sink.writes.Load())
	}

	seqs := sink.sequences()
	for i, seq := range seqs[:5] {
		if seq != uint64(i+1) {
			t.Errorf("Delivery %d should be sequence %d, got %d", i, i+1, seq)
		}
	}
}

// TestPresenterDetachesFailingSink verifies a sink is dropped after its
// error budget and healthy sinks keep receiving frames
func TestPresenterDetachesFailingSink(t *testing.T) {
	ring, err := NewFrameRing(4, 8)
	if err != nil {
		t.Fatalf("NewFrameRing failed: %v", err)
	}

	broken := &brokenSink{}
	healthy := newRecordingSink("healthy")

	var lost atomic.Value
	p := NewAsyncPresenter(ring)
	p.AddSink(broken)
	p.AddSink(healthy)
	p.SetOnSinkLost(func(name string) { lost.Store(name) })
	p.Start(500)
	defer p.Stop()

	// Keep the ring fed until the broken sink burns its error budget.
	frame := make([]byte, 4)
	seq := uint64(0)
	fed := pollUntil(t, 5*time.Second, func() bool {
		seq++
		ring.TryWrite(seq, frame)
		return broken.closes.Load() >= 1
	})
	if !fed {
		t.Fatal("Broken sink was never detached")
	}

	if got := broken.writes.Load(); got < MaxConsecutiveErrors {
		t.Errorf("Expected at least %d attempts before detach, got %d", MaxConsecutiveErrors, got)
	}

	if !pollUntil(t, 2*time.Second, func() bool {
		name, _ := lost.Load().(string)
		return name == "broken"
	}) {
		t.Error("OnSinkLost should fire with the detached sink's name")
	}

	// The healthy sink keeps receiving frames after the detach.
	before := healthy.writes.Load()
	if !pollUntil(t, 2*time.Second, func() bool {
		seq++
		ring.TryWrite(seq, frame)
		return healthy.writes.Load() > before
	}) {
		t.Error("Healthy sink should keep receiving frames after the detach")
	}

	// Detach happens once even if more errors would follow.
	if got := broken.closes.Load(); got != 1 {
		t.Errorf("Detach should close the sink exactly once, got %d", got)
	}
}

// TestPresenterStartStopIdempotence verifies repeated starts and stops
func TestPresenterStartStopIdempotence(t *testing.T) {
	ring, err := NewFrameRing(4, 4)
	if err != nil {
		t.Fatalf("NewFrameRing failed: %v", err)
	}

	p := NewAsyncPresenter(ring)
	p.Start(100)
	p.Start(100) // No-op
	if !p.IsRunning() {
		t.Error("Presenter should be running after Start")
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("Presenter should not be running after Stop")
	}
	p.Stop() // No-op
}

// TestPresenterStats verifies the stats map carries delivery counters
func TestPresenterStats(t *testing.T) {
	ring, err := NewFrameRing(4, 8)
	if err != nil {
		t.Fatalf("NewFrameRing failed: %v", err)
	}

	sink := newRecordingSink("rec")
	p := NewAsyncPresenter(ring)
	p.AddSink(sink)
	p.Start(500)
	defer p.Stop()

	ring.TryWrite(1, make([]byte, 4))
	if !pollUntil(t, 2*time.Second, func() bool { return sink.writes.Load() >= 1 }) {
		t.Fatal("Sink never saw the frame")
	}

	stats := p.GetStats()
	if stats["framesPresented"].(uint64) < 1 {
		t.Error("framesPresented should be at least 1")
	}
	if stats["liveSinks"].(int) != 1 {
		t.Errorf("Expected 1 live sink, got %v", stats["liveSinks"])
	}
	if stats["running"].(bool) != true {
		t.Error("Stats should report running")
	}
}
