package present

import (
	"fmt"
	"sync/atomic"
)

// DefaultSlots is the default frame ring capacity. At 30 FPS, 16 slots are
// about half a second of slack before frames start dropping.
const DefaultSlots = 16

// FrameRing decouples frame production from delivery. The render side
// writes with TryWrite, the presenter drains with TryRead; both are
// lock-free and wait-free for the single-producer single-consumer case.
// When the ring is full new frames are dropped, which is always better
// than blocking the render phase.
type FrameRing struct {
	slots     [][]byte
	seqs      []uint64
	readIdx   uint32 // atomic, consumer
	writeIdx  uint32 // atomic, producer
	frameSize int

	framesWritten uint64 // atomic
	framesDropped uint64 // atomic
	framesRead    uint64 // atomic
}

// RingStats is a point-in-time view of ring throughput.
type RingStats struct {
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	Read      uint64 `json:"read"`
	Available int    `json:"available"`
}

// NewFrameRing creates a ring with pre-allocated slots. slotCount <= 0
// selects DefaultSlots. One slot is always kept empty to distinguish full
// from empty, so the usable capacity is slotCount-1.
func NewFrameRing(frameSize, slotCount int) (*FrameRing, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size %d must be positive", frameSize)
	}
	if slotCount <= 0 {
		slotCount = DefaultSlots
	}
	if slotCount < 2 {
		return nil, fmt.Errorf("slot count %d must be at least 2", slotCount)
	}

	r := &FrameRing{
		slots:     make([][]byte, slotCount),
		seqs:      make([]uint64, slotCount),
		frameSize: frameSize,
	}
	for i := range r.slots {
		r.slots[i] = make([]byte, frameSize)
	}
	return r, nil
}

// TryWrite copies one frame into the ring. Returns false when the frame
// was dropped, either because the ring is full or the length is wrong.
func (r *FrameRing) TryWrite(seq uint64, frame []byte) bool {
	if len(frame) != r.frameSize {
		atomic.AddUint64(&r.framesDropped, 1)
		return false
	}

	currentWrite := atomic.LoadUint32(&r.writeIdx)
	nextWrite := (currentWrite + 1) % uint32(len(r.slots))

	if nextWrite == atomic.LoadUint32(&r.readIdx) {
		atomic.AddUint64(&r.framesDropped, 1)
		return false
	}

	copy(r.slots[currentWrite], frame)
	r.seqs[currentWrite] = seq

	atomic.StoreUint32(&r.writeIdx, nextWrite)
	atomic.AddUint64(&r.framesWritten, 1)
	return true
}

// TryRead returns the oldest buffered frame and its sequence number, or nil
// when the ring is empty. The returned slice is only valid until the slot
// cycles back around; copy before holding.
func (r *FrameRing) TryRead() (uint64, []byte) {
	readIdx := atomic.LoadUint32(&r.readIdx)
	writeIdx := atomic.LoadUint32(&r.writeIdx)

	if readIdx == writeIdx {
		return 0, nil
	}

	frame := r.slots[readIdx]
	seq := r.seqs[readIdx]

	atomic.StoreUint32(&r.readIdx, (readIdx+1)%uint32(len(r.slots)))
	atomic.AddUint64(&r.framesRead, 1)
	return seq, frame
}

// Available returns the number of buffered frames.
func (r *FrameRing) Available() int {
	readIdx := atomic.LoadUint32(&r.readIdx)
	writeIdx := atomic.LoadUint32(&r.writeIdx)

	n := len(r.slots)
	if writeIdx >= readIdx {
		return int(writeIdx - readIdx)
	}
	return n - int(readIdx) + int(writeIdx)
}

// Stats returns ring throughput counters.
func (r *FrameRing) Stats() RingStats {
	return RingStats{
		Written:   atomic.LoadUint64(&r.framesWritten),
		Dropped:   atomic.LoadUint64(&r.framesDropped),
		Read:      atomic.LoadUint64(&r.framesRead),
		Available: r.Available(),
	}
}

// Reset drops all buffered frames and zeroes the counters. Only safe when
// neither side is active.
func (r *FrameRing) Reset() {
	atomic.StoreUint32(&r.readIdx, 0)
	atomic.StoreUint32(&r.writeIdx, 0)
	atomic.StoreUint64(&r.framesWritten, 0)
	atomic.StoreUint64(&r.framesDropped, 0)
	atomic.StoreUint64(&r.framesRead, 0)
}
