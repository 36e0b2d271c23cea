package present

import (
	"testing"
)

// TestNewSurfaceValidation verifies dimension and page count bounds
func TestNewSurfaceValidation(t *testing.T) {
	tests := []struct {
		name    string
		width   int
		height  int
		pages   int
		wantErr bool
	}{
		{"double buffered", 64, 48, 2, false},
		{"triple buffered", 64, 48, 3, false},
		{"single page", 64, 48, 1, true},
		{"too many pages", 64, 48, 4, true},
		{"zero width", 0, 48, 2, true},
		{"negative height", 64, -1, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSurface(tt.width, tt.height, tt.pages)
			if tt.wantErr && err == nil {
				t.Errorf("NewSurface(%d, %d, %d) should have failed", tt.width, tt.height, tt.pages)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("NewSurface(%d, %d, %d) failed: %v", tt.width, tt.height, tt.pages, err)
			}
		})
	}
}

// TestSurfaceFlipPublishesDrawnPixels verifies the front page carries what
// was drawn on the back page before the flip
func TestSurfaceFlipPublishesDrawnPixels(t *testing.T) {
	s, err := NewSurface(8, 8, 2)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	// Before any flip the front page is black.
	front := s.Front()
	if front[0] != 0 || front[3] != 0 {
		t.Error("Front page should start zeroed")
	}

	dc := s.Back()
	dc.SetRGB(1, 0, 0)
	dc.Clear()

	if seq := s.Flip(); seq != 1 {
		t.Errorf("First flip should be sequence 1, got %d", seq)
	}

	front = s.Front()
	if front[0] != 255 || front[1] != 0 || front[2] != 0 || front[3] != 255 {
		t.Errorf("Front pixel should be opaque red, got %v", front[:4])
	}
}

// TestSurfacePageRotation verifies flips rotate through all pages with
// increasing sequence numbers
func TestSurfacePageRotation(t *testing.T) {
	s, err := NewSurface(4, 4, 3)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	colors := [][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	expect := [][3]byte{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}}

	for i := 0; i < 3; i++ {
		dc := s.Back()
		dc.SetRGB(colors[i][0], colors[i][1], colors[i][2])
		dc.Clear()

		seq := s.Flip()
		if seq != uint64(i+1) {
			t.Errorf("Flip %d should return sequence %d, got %d", i, i+1, seq)
		}

		front := s.Front()
		if front[0] != expect[i][0] || front[1] != expect[i][1] || front[2] != expect[i][2] {
			t.Errorf("Flip %d front pixel should be %v, got %v", i, expect[i], front[:3])
		}
	}

	if got := s.Flips(); got != 3 {
		t.Errorf("Expected 3 flips, got %d", got)
	}
}

// TestSurfaceFrontImageIsACopy verifies mutating the returned image does
// not touch the live page
func TestSurfaceFrontImageIsACopy(t *testing.T) {
	s, err := NewSurface(4, 4, 2)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	dc := s.Back()
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	s.Flip()

	img := s.FrontImage()
	img.Pix[0] = 7

	if s.Front()[0] != 255 {
		t.Error("Mutating the copied image should not affect the front page")
	}
}

// TestSurfaceGeometry verifies size accessors
func TestSurfaceGeometry(t *testing.T) {
	s, err := NewSurface(320, 240, 2)
	if err != nil {
		t.Fatalf("NewSurface failed: %v", err)
	}

	w, h := s.Size()
	if w != 320 || h != 240 {
		t.Errorf("Expected 320x240, got %dx%d", w, h)
	}
	if got := s.FrameSize(); got != 320*240*4 {
		t.Errorf("Expected frame size %d, got %d", 320*240*4, got)
	}
}
