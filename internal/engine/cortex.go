package engine

import "math/rand"

// Cortex is the three-phase contract a host game implements to be driven by
// the scheduler. Exactly one cortex is bound to one scheduler for its
// lifetime.
//
// All three phases run sequentially on the scheduler's own goroutine. A
// returned error is a recoverable per-tick failure routed through the
// attached FaultPolicy; a panic is programmer error, recovered by the loop
// and routed the same way so it never crashes the host process.
type Cortex interface {
	// Init runs exactly once, on the loop goroutine, before the first
	// accumulator iteration.
	Init() error

	// Update advances the simulation by one fixed tick. delta is the tick
	// length in seconds (1 / target rate). sv is resolved through the lazy
	// locator on first use and shared across all ticks.
	Update(sv *Services, delta float64) error

	// Render draws the current state into the presentation surface. It runs
	// at most once per outer loop pass, and only when at least one update
	// tick ran in that pass.
	Render() error
}

// EventSink accepts timing and gameplay events for the journal. Emit
// reports whether the event was accepted; false means it was shed under
// rate limiting or backpressure.
type EventSink interface {
	Emit(kind string, tick uint64, payload any) bool
}

// Services bundles the host-owned facilities a cortex may touch during
// update. The host assembles it and hands it to the scheduler through a
// Locator; nil fields mean the facility is absent.
type Services struct {
	Events EventSink      // timing journal, may be nil
	Rand   *rand.Rand     // host-seeded RNG for deterministic simulation
	Values map[string]any // host-specific extras
}
