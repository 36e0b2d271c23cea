package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Circular buffer size
	MaxEventsPerSec    = 10000                  // Global rate limit
	MaxEventsPerKind   = 100                    // Per-kind rate limit per second
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
	KindLimiterCleanup = 5 * time.Minute        // Cleanup interval for kind limiters

	// DefaultFrameInterval is the minimum spacing between recorded frames.
	// Full frames are heavy; 5 Hz is plenty for scrubbing a session.
	DefaultFrameInterval = 200 * time.Millisecond
)

var labelCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	Label           string `json:"label"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// Config sizes a Recorder.
type Config struct {
	Root          string        // bundle parent directory
	Label         string        // run label, sanitized into the bundle name
	FrameInterval time.Duration // 0 selects DefaultFrameInterval
	Now           func() time.Time
}

// frameBlob stages one captured frame until the flush loop persists it.
type frameBlob struct {
	Seq        uint64
	CapturedAt time.Time
	Pixels     []byte
}

// Recorder is the journal's write side. Events go through a rate-limited
// lock-free ring so the loop goroutine never blocks on disk; an async
// writer drains the ring in batches into a snappy-compressed JSONL stream.
// Frames arrive through the presenter fan-out, are thinned to the
// configured cadence and persisted length-prefixed into a zstd stream.
//
// Recorder implements both the engine's event sink and the presentation
// frame sink.
type Recorder struct {
	buffer    [EventBufferSize]Event
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	globalLimiter *rate.Limiter
	kindLimiters  sync.Map // map[string]*kindLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	closeErr error

	dir string
	now func() time.Time

	fileMu        sync.Mutex
	eventStream   *snappy.Writer
	eventFile     *os.File
	frameStream   *zstd.Encoder
	frameFile     *os.File
	pendingFrames []frameBlob
	lastFrame     time.Time
	frameEvery    time.Duration

	droppedCount  uint64 // atomic
	totalCount    uint64 // atomic
	framesKept    uint64 // atomic
	framesSkipped uint64 // atomic
}

// kindLimiterEntry tracks per-kind rate limiting.
type kindLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRecorder creates the bundle directory, opens the compressed sinks and
// writes the manifest. The recorder does not accept events until Start.
func NewRecorder(cfg Config) (*Recorder, Manifest, error) {
	if cfg.Root == "" {
		return nil, Manifest{}, fmt.Errorf("journal root must be provided")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	frameEvery := cfg.FrameInterval
	if frameEvery <= 0 {
		frameEvery = DefaultFrameInterval
	}

	label := labelCleaner.ReplaceAllString(cfg.Label, "")
	if label == "" {
		label = "session"
	}
	created := now().UTC()
	dir := filepath.Join(cfg.Root, fmt.Sprintf("%s-%s", label, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(dir, "events.jsonl.sz"))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(dir, "frames.bin.zst"))
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:         1,
		CreatedAt:       created.Format(time.RFC3339Nano),
		Label:           label,
		FrameIntervalMs: int(frameEvery / time.Millisecond),
		EventsPath:      "events.jsonl.sz",
		FramesPath:      "frames.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	r := &Recorder{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
		dir:           dir,
		now:           now,
		eventStream:   eventStream,
		eventFile:     eventFile,
		frameStream:   frameStream,
		frameFile:     frameFile,
		frameEvery:    frameEvery,
	}
	return r, manifest, nil
}

// Directory returns the bundle directory.
func (r *Recorder) Directory() string {
	return r.dir
}

// Start begins the async writer goroutines. Idempotent.
func (r *Recorder) Start() {
	if r.running.Load() {
		return
	}
	r.running.Store(true)
	r.writerWg.Add(2)
	go r.writerLoop()
	go r.cleanupLoop()
	log.Printf("📼 Journal recording to %s", r.dir)
}

// Stop drains the ring, flushes both streams and closes the files. Safe to
// call more than once; later calls return the first close error.
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		close(r.stopChan)
		r.writerWg.Wait()

		r.fileMu.Lock()
		defer r.fileMu.Unlock()

		var firstErr error
		if err := r.flushFramesLocked(); err != nil {
			firstErr = err
		}
		if err := r.eventStream.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.eventStream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.eventFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.frameStream.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.frameFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.closeErr = firstErr
		log.Printf("📼 Journal closed: %d events (%d dropped), %d frames (%d thinned)",
			atomic.LoadUint64(&r.totalCount), atomic.LoadUint64(&r.droppedCount),
			atomic.LoadUint64(&r.framesKept), atomic.LoadUint64(&r.framesSkipped))
	})
	return r.closeErr
}

// Emit accepts one event, applying the global and per-kind rate limits.
// Returns false when the event was shed. Never blocks.
func (r *Recorder) Emit(kind string, tick uint64, payload interface{}) bool {
	if !r.running.Load() {
		return false
	}

	if !r.globalLimiter.Allow() {
		atomic.AddUint64(&r.droppedCount, 1)
		return false
	}
	if kind != "" {
		if !r.getKindLimiter(kind).Allow() {
			atomic.AddUint64(&r.droppedCount, 1)
			return false
		}
	}

	event := NewEvent(kind, tick, payload)

	// Acquire a ring slot; when the ring is full the oldest entry is
	// sacrificed so the producer never stalls.
	head := atomic.AddUint64(&r.writeHead, 1)
	tail := atomic.LoadUint64(&r.readHead)
	if head-tail >= EventBufferSize {
		atomic.AddUint64(&r.readHead, 1)
		atomic.AddUint64(&r.droppedCount, 1)
	}

	event.Sequence = head
	r.buffer[head%EventBufferSize] = event

	atomic.AddUint64(&r.totalCount, 1)
	return true
}

// Name identifies the recorder in presenter logs and stats.
func (r *Recorder) Name() string {
	return "journal"
}

// WriteFrame accepts one published frame from the presenter, keeping only
// every frameEvery-th slice of wall time. Skipped frames are not errors.
func (r *Recorder) WriteFrame(seq uint64, pixels []byte) error {
	if !r.running.Load() {
		return fmt.Errorf("journal recorder is stopped")
	}

	captured := r.now().UTC()

	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	if !r.lastFrame.IsZero() && captured.Sub(r.lastFrame) < r.frameEvery {
		atomic.AddUint64(&r.framesSkipped, 1)
		return nil
	}
	r.lastFrame = captured

	clone := append([]byte(nil), pixels...)
	r.pendingFrames = append(r.pendingFrames, frameBlob{Seq: seq, CapturedAt: captured, Pixels: clone})
	atomic.AddUint64(&r.framesKept, 1)
	return nil
}

// Close implements the frame sink contract; it is an alias for Stop.
func (r *Recorder) Close() error {
	return r.Stop()
}

// getKindLimiter returns/creates a per-kind rate limiter.
func (r *Recorder) getKindLimiter(kind string) *rate.Limiter {
	if entry, ok := r.kindLimiters.Load(kind); ok {
		e := entry.(*kindLimiterEntry)
		e.lastUsed = time.Now()
		return e.limiter
	}

	entry := &kindLimiterEntry{
		limiter:  rate.NewLimiter(MaxEventsPerKind, MaxEventsPerKind/10),
		lastUsed: time.Now(),
	}
	actual, _ := r.kindLimiters.LoadOrStore(kind, entry)
	return actual.(*kindLimiterEntry).limiter
}

// writerLoop batches ring events and pending frames to disk.
func (r *Recorder) writerLoop() {
	defer r.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-r.stopChan:
			// Final drain; the ring may hold more than one batch.
			for {
				batch = r.collectBatch(batch[:0])
				if len(batch) == 0 {
					break
				}
				r.flushEvents(batch)
			}
			return

		case <-ticker.C:
			batch = r.collectBatch(batch[:0])
			if len(batch) > 0 {
				r.flushEvents(batch)
			}
			r.fileMu.Lock()
			if err := r.flushFramesLocked(); err != nil {
				log.Printf("⚠️ Journal frame flush failed: %v", err)
			}
			r.fileMu.Unlock()
		}
	}
}

// cleanupLoop removes stale kind limiters.
func (r *Recorder) cleanupLoop() {
	defer r.writerWg.Done()

	ticker := time.NewTicker(KindLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-KindLimiterCleanup)
			r.kindLimiters.Range(func(key, value interface{}) bool {
				entry := value.(*kindLimiterEntry)
				if entry.lastUsed.Before(cutoff) {
					r.kindLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// collectBatch reads available events from the ring.
func (r *Recorder) collectBatch(batch []Event) []Event {
	head := atomic.LoadUint64(&r.writeHead)
	tail := atomic.LoadUint64(&r.readHead)

	for i := tail; i < head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, r.buffer[i%EventBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&r.readHead, uint64(len(batch)))
	}
	return batch
}

// flushEvents writes one batch as JSON lines into the snappy stream.
func (r *Recorder) flushEvents(batch []Event) {
	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		r.eventStream.Write(data)
		r.eventStream.Write([]byte("\n"))
	}
	if err := r.eventStream.Flush(); err != nil {
		log.Printf("⚠️ Journal event flush failed: %v", err)
	}
}

// flushFramesLocked writes staged frames length-prefixed into the zstd
// stream. Caller holds fileMu. Layout per record: seq uint64, captured
// unix-nanos uint64, payload length uint32, payload bytes, little endian.
func (r *Recorder) flushFramesLocked() error {
	if len(r.pendingFrames) == 0 {
		return nil
	}
	for _, frame := range r.pendingFrames {
		header := make([]byte, 8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], frame.Seq)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Pixels)))
		if _, err := r.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := r.frameStream.Write(frame.Pixels); err != nil {
			return err
		}
	}
	r.pendingFrames = r.pendingFrames[:0]
	return nil
}

// GetStats returns journal counters for monitoring.
func (r *Recorder) GetStats() map[string]interface{} {
	head := atomic.LoadUint64(&r.writeHead)
	tail := atomic.LoadUint64(&r.readHead)

	return map[string]interface{}{
		"directory":     r.dir,
		"events":        atomic.LoadUint64(&r.totalCount),
		"dropped":       atomic.LoadUint64(&r.droppedCount),
		"pending":       head - tail,
		"framesKept":    atomic.LoadUint64(&r.framesKept),
		"framesThinned": atomic.LoadUint64(&r.framesSkipped),
		"running":       r.running.Load(),
	}
}
