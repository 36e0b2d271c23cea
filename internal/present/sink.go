// This file contains the FrameSink contract and the NullSink, a discard
// sink for headless runs where no delivery target is configured.
package present

import "sync/atomic"

// FrameSink receives published frames from the presenter. WriteFrame is
// called from the presenter goroutine with the ring's slot buffer; the
// pixels are only valid for the duration of the call, so sinks that keep
// frames must copy. Close may be called more than once (once on detach,
// once on pipeline cleanup) and must be safe both times.
type FrameSink interface {
	Name() string
	WriteFrame(seq uint64, pixels []byte) error
	Close() error
}

// NullSink accepts and discards every frame. Used when the pipeline runs
// headless so the presenter path stays exercised end to end.
type NullSink struct {
	frames uint64 // atomic
	closed int32  // atomic
}

// NewNullSink creates a discard sink.
func NewNullSink() *NullSink {
	return &NullSink{}
}

// Name identifies the sink in logs and stats.
func (n *NullSink) Name() string {
	return "null"
}

// WriteFrame counts and discards the frame.
func (n *NullSink) WriteFrame(seq uint64, pixels []byte) error {
	atomic.AddUint64(&n.frames, 1)
	return nil
}

// Close marks the sink closed. Always succeeds.
func (n *NullSink) Close() error {
	atomic.StoreInt32(&n.closed, 1)
	return nil
}

// Frames returns how many frames have been discarded.
func (n *NullSink) Frames() uint64 {
	return atomic.LoadUint64(&n.frames)
}

// Closed reports whether Close has been called.
func (n *NullSink) Closed() bool {
	return atomic.LoadInt32(&n.closed) == 1
}
