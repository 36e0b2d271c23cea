// Package demo provides the bundled demonstration cortex: a swarm of
// discs bouncing inside the canvas. It exists to exercise the scheduler
// and the presentation pipeline end to end without external content.
package demo

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"math/rand"

	"pulse/internal/engine"
	"pulse/internal/present"

	"github.com/fogleman/gg"
)

// Body is one disc in the swarm.
type Body struct {
	X, Y   float64
	VX, VY float64
	Radius float64
	Color  int // palette index
}

// palette holds the disc colors; bodies pick one at init.
var palette = [][3]float64{
	{0.95, 0.35, 0.35}, // coral
	{0.98, 0.75, 0.25}, // amber
	{0.40, 0.85, 0.45}, // mint
	{0.30, 0.65, 0.95}, // sky
	{0.65, 0.45, 0.95}, // violet
	{0.95, 0.50, 0.75}, // rose
}

// Options sizes the demo scene.
type Options struct {
	Bodies int     // swarm size, 0 selects 48
	Seed   int64   // RNG seed, 0 selects 1
	Speed  float64 // mean speed in pixels per second, 0 selects 140
}

// Scene implements the loop contract over a presentation surface.
type Scene struct {
	surface *present.Surface
	opts    Options

	bodies []*Body
	width  float64
	height float64

	tick    uint64
	bounces uint64
}

// Compile-time check that Scene satisfies the loop contract.
var _ engine.Cortex = (*Scene)(nil)

// NewScene creates a scene drawing into the given surface. The swarm is
// built in Init, not here.
func NewScene(surface *present.Surface, opts Options) *Scene {
	return &Scene{surface: surface, opts: opts}
}

// Init seeds the swarm deterministically from the configured seed.
func (s *Scene) Init() error {
	if s.surface == nil {
		return fmt.Errorf("demo scene needs a surface")
	}

	count := s.opts.Bodies
	if count <= 0 {
		count = 48
	}
	seed := s.opts.Seed
	if seed == 0 {
		seed = 1
	}
	speed := s.opts.Speed
	if speed <= 0 {
		speed = 140
	}

	w, h := s.surface.Size()
	s.width = float64(w)
	s.height = float64(h)

	rng := rand.New(rand.NewSource(seed))
	s.bodies = make([]*Body, 0, count)
	for i := 0; i < count; i++ {
		radius := 6 + rng.Float64()*16
		angle := rng.Float64() * 2 * math.Pi
		v := speed * (0.5 + rng.Float64())
		s.bodies = append(s.bodies, &Body{
			X:      radius + rng.Float64()*(s.width-2*radius),
			Y:      radius + rng.Float64()*(s.height-2*radius),
			VX:     math.Cos(angle) * v,
			VY:     math.Sin(angle) * v,
			Radius: radius,
			Color:  rng.Intn(len(palette)),
		})
	}

	log.Printf("🎬 Demo scene ready: %d bodies on %.0fx%.0f", count, s.width, s.height)
	return nil
}

// Update integrates motion for one fixed step and reflects bodies off the
// walls. Bounces are reported through the event sink when one is wired.
func (s *Scene) Update(sv *engine.Services, delta float64) error {
	s.tick++

	for _, b := range s.bodies {
		b.X += b.VX * delta
		b.Y += b.VY * delta

		bounced := false
		if b.X-b.Radius < 0 {
			b.X = b.Radius
			b.VX = -b.VX
			bounced = true
		}
		if b.X+b.Radius > s.width {
			b.X = s.width - b.Radius
			b.VX = -b.VX
			bounced = true
		}
		if b.Y-b.Radius < 0 {
			b.Y = b.Radius
			b.VY = -b.VY
			bounced = true
		}
		if b.Y+b.Radius > s.height {
			b.Y = s.height - b.Radius
			b.VY = -b.VY
			bounced = true
		}

		if bounced {
			s.bounces++
			if sv != nil && sv.Events != nil {
				sv.Events.Emit("body_bounce", s.tick, map[string]float64{
					"x": b.X,
					"y": b.Y,
				})
			}
		}
	}

	// An occasional shove keeps the swarm from settling into loops.
	if sv != nil && sv.Rand != nil && len(s.bodies) > 0 && s.tick%300 == 0 {
		b := s.bodies[sv.Rand.Intn(len(s.bodies))]
		angle := sv.Rand.Float64() * 2 * math.Pi
		v := math.Hypot(b.VX, b.VY)
		b.VX = math.Cos(angle) * v
		b.VY = math.Sin(angle) * v
	}

	return nil
}

// Render draws the swarm onto the back page.
func (s *Scene) Render() error {
	dc := s.surface.Back()

	// Night backdrop with a soft floor glow
	dc.SetRGB255(12, 14, 22)
	dc.Clear()
	floor := gg.NewLinearGradient(0, s.height*0.55, 0, s.height)
	floor.AddColorStop(0, color.RGBA{R: 12, G: 14, B: 22, A: 255})
	floor.AddColorStop(1, color.RGBA{R: 26, G: 32, B: 52, A: 255})
	dc.SetFillStyle(floor)
	dc.DrawRectangle(0, s.height*0.55, s.width, s.height*0.45)
	dc.Fill()

	for _, b := range s.bodies {
		c := palette[b.Color]

		// Soft drop shadow
		dc.SetRGBA(0, 0, 0, 0.35)
		dc.DrawEllipse(b.X, math.Min(b.Y+b.Radius*1.2, s.height-2), b.Radius*0.9, b.Radius*0.3)
		dc.Fill()

		// Disc
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(b.X, b.Y, b.Radius)
		dc.Fill()

		// Specular highlight
		dc.SetRGBA(1, 1, 1, 0.28)
		dc.DrawCircle(b.X-b.Radius*0.3, b.Y-b.Radius*0.3, b.Radius*0.35)
		dc.Fill()
	}

	return nil
}

// Bodies returns the swarm size.
func (s *Scene) Bodies() int {
	return len(s.bodies)
}

// Bounces returns the number of wall reflections so far.
func (s *Scene) Bounces() uint64 {
	return s.bounces
}
