package present

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxConsecutiveErrors is the per-sink failure budget before the sink
	// is detached from the fan-out.
	MaxConsecutiveErrors = 10

	// BackpressureWarningThreshold flags a sink write that took longer than
	// this multiple of the frame interval.
	BackpressureWarningThreshold = 2.0

	// BackpressureLogInterval is the minimum time between backpressure
	// warnings, to keep a struggling sink from flooding the log.
	BackpressureLogInterval = 5 * time.Second

	// starvationLogTicks is how many consecutive empty reads trigger the
	// starvation warning, roughly one second at 30 FPS.
	starvationLogTicks = 30
)

// AsyncPresenter drains the frame ring at a fixed cadence and fans each
// frame out to every attached sink. It isolates the render loop from sink
// latency: a slow or dead sink can never stall the scheduler, it can only
// cause ring drops or get itself detached.
type AsyncPresenter struct {
	ring     *FrameRing
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  int32 // atomic

	mu         sync.RWMutex
	sinks      []*sinkState
	onSinkLost func(name string)

	framesPresented uint64 // atomic
	avgWriteTimeNs  int64  // atomic, EMA across all sinks
	maxWriteTimeNs  int64  // atomic

	backpressureEvents  int64 // atomic
	lastBackpressureLog time.Time
	logMu               sync.Mutex
}

type sinkState struct {
	sink        FrameSink
	consecutive int32  // atomic
	written     uint64 // atomic
	errors      uint64 // atomic
	detached    int32  // atomic
}

// NewAsyncPresenter creates a presenter over the given ring with no sinks
// attached.
func NewAsyncPresenter(ring *FrameRing) *AsyncPresenter {
	return &AsyncPresenter{
		ring:     ring,
		stopChan: make(chan struct{}),
	}
}

// AddSink attaches a sink to the fan-out. Safe while running.
func (p *AsyncPresenter) AddSink(sink FrameSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, &sinkState{sink: sink})
}

// SetOnSinkLost registers a callback fired when a sink is detached after
// exhausting its error budget. Runs on its own goroutine.
func (p *AsyncPresenter) SetOnSinkLost(callback func(name string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSinkLost = callback
}

// Start begins draining the ring at the given frame rate. fps <= 0 selects
// 30. Starting a running presenter is a no-op.
func (p *AsyncPresenter) Start(fps int) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	if fps <= 0 {
		fps = 30
	}

	p.stopChan = make(chan struct{})
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer atomic.StoreInt32(&p.running, 0)

		frameInterval := time.Second / time.Duration(fps)
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		log.Printf("📡 Presenter started at %d FPS (%.2fms interval)", fps, frameInterval.Seconds()*1000)

		consecutiveEmpty := 0
		for {
			select {
			case <-p.stopChan:
				log.Println("📡 Presenter stopping...")
				return
			case <-ticker.C:
				seq, frame := p.ring.TryRead()
				if frame == nil {
					consecutiveEmpty++
					if consecutiveEmpty == starvationLogTicks {
						log.Println("⚠️ Presenter: ring starving, render side may be paused or too slow")
					}
					continue
				}
				consecutiveEmpty = 0
				p.deliver(seq, frame, frameInterval)
			}
		}
	}()
}

// deliver writes one frame to every live sink.
func (p *AsyncPresenter) deliver(seq uint64, frame []byte, frameInterval time.Duration) {
	p.mu.RLock()
	sinks := make([]*sinkState, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.RUnlock()

	delivered := false
	for _, st := range sinks {
		if atomic.LoadInt32(&st.detached) == 1 {
			continue
		}

		startTime := time.Now()
		err := st.sink.WriteFrame(seq, frame)
		writeTime := time.Since(startTime)

		if err != nil {
			atomic.AddUint64(&st.errors, 1)
			errCount := atomic.AddInt32(&st.consecutive, 1)
			if errCount <= 5 {
				log.Printf("❌ Sink %q write error (%d/%d): %v", st.sink.Name(), errCount, MaxConsecutiveErrors, err)
			}
			if errCount >= MaxConsecutiveErrors {
				p.detach(st)
			}
			continue
		}

		delivered = true
		atomic.StoreInt32(&st.consecutive, 0)
		atomic.AddUint64(&st.written, 1)

		avgNs := atomic.LoadInt64(&p.avgWriteTimeNs)
		atomic.StoreInt64(&p.avgWriteTimeNs, (avgNs*9+writeTime.Nanoseconds())/10)
		if writeTime.Nanoseconds() > atomic.LoadInt64(&p.maxWriteTimeNs) {
			atomic.StoreInt64(&p.maxWriteTimeNs, writeTime.Nanoseconds())
		}

		if float64(writeTime) >= float64(frameInterval)*BackpressureWarningThreshold {
			atomic.AddInt64(&p.backpressureEvents, 1)
			p.logMu.Lock()
			if time.Since(p.lastBackpressureLog) > BackpressureLogInterval {
				p.lastBackpressureLog = time.Now()
				log.Printf("⚠️ Backpressure on sink %q: write took %.0fms (target %.1fms)",
					st.sink.Name(), writeTime.Seconds()*1000, frameInterval.Seconds()*1000)
			}
			p.logMu.Unlock()
		}
	}

	if delivered {
		atomic.AddUint64(&p.framesPresented, 1)
	}
}

// detach removes a sink from the fan-out after repeated failures and closes
// it. The sink's Close must tolerate a second call from CleanUp.
func (p *AsyncPresenter) detach(st *sinkState) {
	if !atomic.CompareAndSwapInt32(&st.detached, 0, 1) {
		return
	}

	name := st.sink.Name()
	log.Printf("🔴 Sink %q detached after %d consecutive errors", name, MaxConsecutiveErrors)
	if err := st.sink.Close(); err != nil {
		log.Printf("⚠️ Sink %q close failed: %v", name, err)
	}

	p.mu.RLock()
	callback := p.onSinkLost
	p.mu.RUnlock()
	if callback != nil {
		go callback(name)
	}
}

// Stop halts the drain goroutine and waits for it to exit. Sinks stay
// attached and open; closing them is the pipeline's job.
func (p *AsyncPresenter) Stop() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	log.Println("📡 Presenter stopped")
}

// IsRunning reports whether the drain goroutine is live.
func (p *AsyncPresenter) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

// CloseSinks closes every attached sink, detached or not. Used by the
// pipeline during cleanup; relies on sink Close idempotence.
func (p *AsyncPresenter) CloseSinks() {
	p.mu.RLock()
	sinks := make([]*sinkState, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.RUnlock()

	for _, st := range sinks {
		if err := st.sink.Close(); err != nil {
			log.Printf("⚠️ Sink %q close failed: %v", st.sink.Name(), err)
		}
	}
}

// GetStats returns presenter statistics including per-sink delivery counts.
func (p *AsyncPresenter) GetStats() map[string]interface{} {
	p.mu.RLock()
	sinks := make([]*sinkState, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.RUnlock()

	perSink := make([]map[string]interface{}, 0, len(sinks))
	live := 0
	for _, st := range sinks {
		detached := atomic.LoadInt32(&st.detached) == 1
		if !detached {
			live++
		}
		perSink = append(perSink, map[string]interface{}{
			"name":     st.sink.Name(),
			"written":  atomic.LoadUint64(&st.written),
			"errors":   atomic.LoadUint64(&st.errors),
			"detached": detached,
		})
	}

	ringStats := p.ring.Stats()
	return map[string]interface{}{
		"running":            p.IsRunning(),
		"framesPresented":    atomic.LoadUint64(&p.framesPresented),
		"liveSinks":          live,
		"sinks":              perSink,
		"avgWriteTimeMs":     float64(atomic.LoadInt64(&p.avgWriteTimeNs)) / 1e6,
		"maxWriteTimeMs":     float64(atomic.LoadInt64(&p.maxWriteTimeNs)) / 1e6,
		"backpressureEvents": atomic.LoadInt64(&p.backpressureEvents),
		"ringWritten":        ringStats.Written,
		"ringDropped":        ringStats.Dropped,
		"ringRead":           ringStats.Read,
		"ringAvailable":      ringStats.Available,
	}
}
