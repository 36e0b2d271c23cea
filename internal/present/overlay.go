package present

import (
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// Overlay draws the timing HUD onto a render context. Font faces are
// parsed once at construction to keep file I/O out of the render phase;
// when no usable font is found the overlay falls back to gg's built-in
// face and keeps working.
type Overlay struct {
	fontSmall   font.Face
	fontMedium  font.Face
	fontLarge   font.Face
	fontsLoaded bool
}

// HUDInfo is the per-frame state the overlay displays.
type HUDInfo struct {
	Label      string
	Tick       uint64
	Frame      uint64
	TargetRate int
	Paused     bool
	UpdateMs   float64
	RenderMs   float64
}

// NewOverlay creates an overlay with cached font faces. Font problems are
// logged and tolerated, never fatal.
func NewOverlay() *Overlay {
	o := &Overlay{}
	o.loadFonts()
	return o
}

// loadFonts parses one system font into the three cached sizes.
func (o *Overlay) loadFonts() {
	fontPath := findFontPath()
	if fontPath == "" {
		log.Println("⚠️ No font found, overlay falls back to the built-in face")
		return
	}

	fontData, err := os.ReadFile(fontPath)
	if err != nil {
		log.Printf("⚠️ Failed to read font file: %v", err)
		return
	}

	parsedFont, err := opentype.Parse(fontData)
	if err != nil {
		log.Printf("⚠️ Failed to parse font: %v", err)
		return
	}

	o.fontSmall, err = opentype.NewFace(parsedFont, &opentype.FaceOptions{
		Size:    14,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		log.Printf("⚠️ Failed to create small font face: %v", err)
		return
	}

	o.fontMedium, err = opentype.NewFace(parsedFont, &opentype.FaceOptions{
		Size:    20,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		log.Printf("⚠️ Failed to create medium font face: %v", err)
		return
	}

	o.fontLarge, err = opentype.NewFace(parsedFont, &opentype.FaceOptions{
		Size:    42,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		log.Printf("⚠️ Failed to create large font face: %v", err)
		return
	}

	o.fontsLoaded = true
	log.Printf("✅ Overlay fonts loaded from: %s", fontPath)
}

// Loaded reports whether the cached faces are usable.
func (o *Overlay) Loaded() bool {
	return o.fontsLoaded
}

// DrawHUD paints the timing panel in the top-left corner and, when paused,
// a centered banner.
func (o *Overlay) DrawHUD(dc *gg.Context, info HUDInfo) {
	panelX, panelY := 16.0, 16.0
	panelW, panelH := 250.0, 98.0

	// Panel shadow and dark card
	dc.SetColor(color.RGBA{0, 0, 0, 40})
	dc.DrawRoundedRectangle(panelX+2, panelY+2, panelW, panelH, 6)
	dc.Fill()
	dc.SetColor(color.RGBA{18, 18, 24, 235})
	dc.DrawRoundedRectangle(panelX, panelY, panelW, panelH, 6)
	dc.Fill()

	// Accent strip
	dc.SetColor(color.RGBA{0, 212, 255, 255})
	dc.DrawRoundedRectangle(panelX, panelY, 4, panelH, 2)
	dc.Fill()

	textX := panelX + 16.0
	textY := panelY + 26.0

	if o.fontsLoaded {
		dc.SetFontFace(o.fontMedium)
	}
	dc.SetColor(color.RGBA{255, 255, 255, 255})
	dc.DrawString(info.Label, textX, textY)

	if o.fontsLoaded {
		dc.SetFontFace(o.fontSmall)
	}
	dc.SetColor(color.RGBA{160, 165, 180, 255})
	dc.DrawString(fmt.Sprintf("tick %d   frame %d", info.Tick, info.Frame), textX, textY+24)
	dc.DrawString(fmt.Sprintf("%d TPS   upd %.2fms   rnd %.2fms",
		info.TargetRate, info.UpdateMs, info.RenderMs), textX, textY+44)

	// Live dot, red while running, gray while paused
	dotX := panelX + panelW - 18.0
	dotY := panelY + 18.0
	if info.Paused {
		dc.SetColor(color.RGBA{120, 120, 130, 255})
	} else {
		dc.SetColor(color.RGBA{255, 60, 60, 255})
	}
	dc.DrawCircle(dotX, dotY, 4)
	dc.Fill()

	if info.Paused {
		o.drawPausedBanner(dc)
	}
}

// drawPausedBanner paints the centered PAUSED card.
func (o *Overlay) drawPausedBanner(dc *gg.Context) {
	w := float64(dc.Width())
	h := float64(dc.Height())

	bannerW, bannerH := 320.0, 90.0
	x := (w - bannerW) / 2
	y := (h - bannerH) / 2

	dc.SetColor(color.RGBA{0, 0, 0, 160})
	dc.DrawRoundedRectangle(x, y, bannerW, bannerH, 10)
	dc.Fill()

	if o.fontsLoaded {
		dc.SetFontFace(o.fontLarge)
	}
	dc.SetColor(color.RGBA{255, 210, 60, 255})
	dc.DrawStringAnchored("PAUSED", w/2, h/2, 0.5, 0.35)
}

// findFontPath probes common system font locations, then the working
// directory.
func findFontPath() string {
	paths := []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/TTF/DejaVuSans.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
		"C:\\Windows\\Fonts\\arial.ttf",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	matches, _ := filepath.Glob("*.ttf")
	if len(matches) > 0 {
		return matches[0]
	}

	return ""
}
