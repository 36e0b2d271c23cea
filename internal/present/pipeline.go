package present

import (
	"fmt"
	"image/png"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

// PipelineConfig sizes the presentation pipeline.
type PipelineConfig struct {
	Width     int
	Height    int
	Pages     int // surface pages, 2 or 3
	RingSlots int // 0 selects DefaultSlots
	FPS       int // presenter drain rate, 0 selects 30
}

// Pipeline is the full presentation path: surface pages for the render
// phase, the frame ring for hand-off, and the async presenter for
// delivery. The scheduler's presentation trigger calls Present; everything
// downstream of that runs off the loop goroutine.
type Pipeline struct {
	surface   *Surface
	ring      *FrameRing
	presenter *AsyncPresenter
	fps       int

	overlay   *Overlay
	hudSource func() HUDInfo

	closed      int32 // atomic
	cleanupOnce sync.Once
}

// NewPipeline builds the surface, ring and presenter from one config.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	surface, err := NewSurface(cfg.Width, cfg.Height, cfg.Pages)
	if err != nil {
		return nil, fmt.Errorf("pipeline surface: %w", err)
	}
	ring, err := NewFrameRing(surface.FrameSize(), cfg.RingSlots)
	if err != nil {
		return nil, fmt.Errorf("pipeline ring: %w", err)
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}

	return &Pipeline{
		surface:   surface,
		ring:      ring,
		presenter: NewAsyncPresenter(ring),
		fps:       fps,
	}, nil
}

// Surface returns the render target the cortex draws into.
func (p *Pipeline) Surface() *Surface {
	return p.surface
}

// AddSink attaches a delivery sink.
func (p *Pipeline) AddSink(sink FrameSink) {
	p.presenter.AddSink(sink)
}

// SetOnSinkLost forwards the sink-detach callback.
func (p *Pipeline) SetOnSinkLost(callback func(name string)) {
	p.presenter.SetOnSinkLost(callback)
}

// SetHUD attaches an overlay drawn onto the back page at present time,
// fed by the given snapshot source. Call before Start.
func (p *Pipeline) SetHUD(overlay *Overlay, source func() HUDInfo) {
	p.overlay = overlay
	p.hudSource = source
}

// Start spins up the presenter drain goroutine.
func (p *Pipeline) Start() {
	p.presenter.Start(p.fps)
}

// Present publishes the frame drawn since the previous call: it stamps the
// HUD overlay, flips the surface and offers the new front page to the
// ring. Never blocks; when the ring is full the frame is dropped and the
// drop is counted. Safe to call after CleanUp, where it becomes a no-op.
func (p *Pipeline) Present() {
	if atomic.LoadInt32(&p.closed) == 1 {
		return
	}
	if p.overlay != nil && p.hudSource != nil {
		p.overlay.DrawHUD(p.surface.Back(), p.hudSource())
	}
	seq := p.surface.Flip()
	p.ring.TryWrite(seq, p.surface.Front())
}

// CleanUp stops the presenter and closes every sink. Idempotent: only the
// first call does work, later calls return immediately.
func (p *Pipeline) CleanUp() {
	p.cleanupOnce.Do(func() {
		atomic.StoreInt32(&p.closed, 1)
		p.presenter.Stop()
		p.presenter.CloseSinks()
		log.Println("🧹 Presentation pipeline cleaned up")
	})
}

// EncodeFrontPNG writes the most recently published frame as a PNG. Works
// before the first flip (a black frame) and after CleanUp.
func (p *Pipeline) EncodeFrontPNG(w io.Writer) error {
	return png.Encode(w, p.surface.FrontImage())
}

// GetStats merges surface, ring and presenter statistics.
func (p *Pipeline) GetStats() map[string]interface{} {
	stats := p.presenter.GetStats()
	stats["surfaceFlips"] = p.surface.Flips()
	width, height := p.surface.Size()
	stats["resolution"] = fmt.Sprintf("%dx%d", width, height)
	stats["fps"] = p.fps
	stats["closed"] = atomic.LoadInt32(&p.closed) == 1
	return stats
}
