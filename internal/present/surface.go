// Package present owns everything between the render phase and the outside
// world: the page-flipping pixel surface the cortex draws into, the frame
// ring that decouples rendering from delivery, the async presenter that fans
// frames out to sinks, and the text overlay.
package present

import (
	"fmt"
	"image"
	"sync"

	"github.com/fogleman/gg"
)

const (
	// MinPages and MaxPages bound the surface page count. Two pages give
	// classic front/back flipping; three add one page of slack so a slow
	// reader never stalls the render phase.
	MinPages = 2
	MaxPages = 3
)

// Surface is a page-flipping render target. The cortex draws into the back
// page's gg context during the render phase; Flip publishes that page as
// the new front and rotates to the next back page. Readers only ever see
// fully drawn frames.
type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	pages    [][]byte
	contexts []*gg.Context
	active   int // back page index
	flips    uint64
}

// NewSurface creates a surface with the given page count (2 or 3). Pixel
// buffers are RGBA, pre-allocated so the render path never allocates.
func NewSurface(width, height, pages int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface dimensions %dx%d must be positive", width, height)
	}
	if pages < MinPages || pages > MaxPages {
		return nil, fmt.Errorf("surface page count %d must be %d or %d", pages, MinPages, MaxPages)
	}

	s := &Surface{
		width:    width,
		height:   height,
		pages:    make([][]byte, pages),
		contexts: make([]*gg.Context, pages),
	}
	frameSize := width * height * 4
	for i := 0; i < pages; i++ {
		s.pages[i] = make([]byte, frameSize)
		s.contexts[i] = gg.NewContext(width, height)
	}
	return s, nil
}

// Back returns the drawing context for the current back page. Only the
// render phase may use it, and only between flips.
func (s *Surface) Back() *gg.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contexts[s.active]
}

// Flip copies the back context's pixels into the back page, publishes it as
// the new front and rotates to the next back page. Returns the sequence
// number of the published frame, counting from 1.
func (s *Surface) Flip() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncPage(s.active)
	s.active = (s.active + 1) % len(s.pages)
	s.flips++
	return s.flips
}

// Front returns the most recently published page. The slice is reused on a
// later flip of the same page, so callers that hold frames across flips
// must copy.
func (s *Surface) Front() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := (s.active - 1 + len(s.pages)) % len(s.pages)
	return s.pages[front]
}

// FrontImage returns a standalone RGBA copy of the front page, safe to hold
// indefinitely.
func (s *Surface) FrontImage() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	front := (s.active - 1 + len(s.pages)) % len(s.pages)
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, s.pages[front])
	return img
}

// Size returns the surface dimensions in pixels.
func (s *Surface) Size() (width, height int) {
	return s.width, s.height
}

// FrameSize returns the byte length of one RGBA page.
func (s *Surface) FrameSize() int {
	return s.width * s.height * 4
}

// Flips returns how many pages have been published.
func (s *Surface) Flips() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flips
}

// syncPage copies one context's image into its page buffer. Caller holds
// the lock. gg contexts are RGBA-backed so the common path is a straight
// copy; the generic path covers any other image kind.
func (s *Surface) syncPage(idx int) {
	img := s.contexts[idx].Image()
	buffer := s.pages[idx]

	switch src := img.(type) {
	case *image.RGBA:
		copy(buffer, src.Pix)
	case *image.NRGBA:
		copy(buffer, src.Pix)
	default:
		bounds := img.Bounds()
		pos := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, a := img.At(x, y).RGBA()
				buffer[pos] = uint8(r >> 8)
				buffer[pos+1] = uint8(g >> 8)
				buffer[pos+2] = uint8(b >> 8)
				buffer[pos+3] = uint8(a >> 8)
				pos += 4
			}
		}
	}
}
