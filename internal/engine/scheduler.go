// Package engine contains the fixed-timestep scheduler that decouples
// simulation rate from presentation rate. The scheduler owns one goroutine,
// drives a Cortex through its init/update/render phases with a time
// accumulator, contains per-phase failures, and records phase timings.
package engine

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MinTargetRate and MaxTargetRate bound the tick rate. Above 1000 TPS a
	// tick is shorter than the loop's own yield quantum.
	MinTargetRate = 1
	MaxTargetRate = 1000

	// loopYield is the running-loop sleep between outer iterations. It is a
	// scheduling yield, not a rate limiter: pacing comes entirely from the
	// accumulator.
	loopYield = 2 * time.Millisecond

	// pausedSleep is the coarser sleep used while paused, when the loop
	// skips both phases and only needs to notice resume/stop promptly.
	pausedSleep = 50 * time.Millisecond
)

// ErrTerminated is returned by Start once the loop has already run and
// stopped. A scheduler is one-shot, like the goroutine it owns: construct a
// fresh one to run again.
var ErrTerminated = errors.New("scheduler already terminated; construct a new one")

// Config carries the construction-time settings for a Scheduler.
type Config struct {
	// TargetRate is the fixed update rate in ticks per second (1..1000).
	TargetRate int

	// StopOnFault selects the default policy applied when no FaultPolicy
	// is attached: stop the loop on the first fault, or log and continue.
	StopOnFault bool

	// Verbose enables a once-per-second TPS/FPS log line.
	Verbose bool

	// MetricsWindow overrides the per-phase metrics window size. Zero
	// selects DefaultMetricsWindow.
	MetricsWindow int

	// Clock overrides the wall clock. Nil selects SystemClock.
	Clock Clock

	// Present is the presentation trigger: fired at most once per outer
	// pass, only when at least one update tick ran in that pass and the
	// render phase completed without fault.
	Present func()

	// AfterUpdate fires after every successful update tick.
	AfterUpdate func()

	// Hooks observes lifecycle transitions. Nil selects NoopHooks.
	Hooks LifecycleHooks

	// Policy decides fault outcomes. Nil selects DefaultPolicy(StopOnFault).
	Policy FaultPolicy

	// ObservePhase, when set, receives the wall-clock duration of every
	// update and render phase call. Used to feed external metrics
	// collectors without the engine knowing about them.
	ObservePhase func(phase Phase, d time.Duration)
}

// Scheduler drives a Cortex at a fixed tick rate on a dedicated goroutine.
// Elapsed wall time is converted to tick units and accumulated; every whole
// tick in the accumulator runs exactly one update, so update cadence stays
// deterministic no matter how often the outer loop gets scheduled. Render
// is amortized: at most once per outer pass even when several update ticks
// caught up.
//
// Lifecycle: Stopped -> Running -> (Paused <-> Running)* -> Stopped, and the
// final Stopped is terminal. All transition methods are safe from any
// goroutine.
type Scheduler struct {
	mu      sync.RWMutex
	started bool
	running bool
	paused  bool
	label   string

	cortex  Cortex
	locator *Locator
	clock   Clock
	metrics *FrameMetrics

	hooks       LifecycleHooks
	policy      FaultPolicy
	fallback    FaultPolicy // construction-time default, escalation target
	present     func()
	afterUpdate func()
	observe     func(Phase, time.Duration)

	rate    atomic.Int64
	verbose atomic.Bool

	stopChan chan struct{}
	stopOnce sync.Once

	// Counters are atomics so API readers never touch the loop's lock.
	tickCount  atomic.Uint64 // update calls attempted
	frameCount atomic.Uint64 // render phases completed without fault
	faultCount atomic.Uint64

	status atomic.Pointer[Status]
}

// Status is a lock-free point-in-time view of the scheduler, republished
// once per outer pass and on every lifecycle transition.
type Status struct {
	Label      string          `json:"label"`
	Running    bool            `json:"running"`
	Paused     bool            `json:"paused"`
	TargetRate int             `json:"targetRate"`
	Ticks      uint64          `json:"ticks"`
	Frames     uint64          `json:"frames"`
	Faults     uint64          `json:"faults"`
	Metrics    MetricsSnapshot `json:"metrics"`
}

// New creates a scheduler bound to the given cortex. The locator may be nil
// when the cortex needs no services.
func New(cortex Cortex, locator *Locator, cfg Config) (*Scheduler, error) {
	if cortex == nil {
		return nil, errors.New("scheduler requires a cortex")
	}
	if err := validateRate(cfg.TargetRate); err != nil {
		return nil, err
	}
	if locator == nil {
		locator = NewLocator(nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = NoopHooks{}
	}
	fallback := DefaultPolicy(cfg.StopOnFault)
	policy := cfg.Policy
	if policy == nil {
		policy = fallback
	}

	s := &Scheduler{
		cortex:      cortex,
		locator:     locator,
		clock:       clock,
		metrics:     NewFrameMetrics(cfg.MetricsWindow),
		hooks:       hooks,
		policy:      policy,
		fallback:    fallback,
		present:     cfg.Present,
		afterUpdate: cfg.AfterUpdate,
		observe:     cfg.ObservePhase,
		stopChan:    make(chan struct{}),
	}
	s.rate.Store(int64(cfg.TargetRate))
	s.verbose.Store(cfg.Verbose)
	s.publishStatus()
	return s, nil
}

func validateRate(n int) error {
	if n < MinTargetRate || n > MaxTargetRate {
		return fmt.Errorf("target rate %d is outside [%d, %d] ticks/sec", n, MinTargetRate, MaxTargetRate)
	}
	return nil
}

// Start spawns the loop goroutine. The cortex's Init phase runs on that
// goroutine, and Start blocks until it resolves: a failed init with a stop
// decision leaves IsRunning()==false by the time Start returns, with the
// init fault as the returned error. Starting a running scheduler is a
// no-op; starting a terminated one fails with ErrTerminated.
func (s *Scheduler) Start(label string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.started {
		s.mu.Unlock()
		return ErrTerminated
	}
	s.started = true
	s.running = true
	s.label = label
	s.mu.Unlock()

	initDone := make(chan error, 1)
	go s.run(initDone)

	if err := <-initDone; err != nil {
		return err
	}

	log.Printf("🚀 Scheduler %q started at %d TPS", label, s.TargetRate())
	return nil
}

// Stop requests a cooperative shutdown. The stop signal is observed at the
// top of the next outer iteration, so an in-flight phase call always runs
// to completion; IsRunning flips false immediately. Safe from any
// goroutine, including cortex phases; no-op when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.publishStatus()
	log.Printf("🛑 Scheduler %q stopping", s.labelName())
}

// Pause suspends both phases; the loop keeps its goroutine and sleeps
// coarsely. Wall time spent paused still enters the accumulator, so a long
// pause produces one catch-up burst of updates on resume. That is a design
// choice, not a bug: resetting the accumulator would silently change
// observable tick counts. Idempotent; no-op when not running.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if !s.running || s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = true
	hooks := s.hooks
	s.mu.Unlock()

	s.publishStatus()
	hooks.OnPause()
	log.Printf("⏸️ Scheduler %q paused", s.labelName())
}

// Resume lifts a pause. Idempotent; no-op when not paused.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if !s.running || !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	hooks := s.hooks
	s.mu.Unlock()

	s.publishStatus()
	hooks.OnResume()
	log.Printf("▶️ Scheduler %q resumed", s.labelName())
}

// IsRunning reports whether the loop is live.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IsPaused reports whether the loop is paused.
func (s *Scheduler) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetTargetRate changes the tick rate. Out-of-range values are rejected
// with a descriptive error, never clamped. Safe while running: the loop
// picks the new rate up on its next outer pass; the accumulator backlog is
// kept in tick units so no time debt is lost across the change.
func (s *Scheduler) SetTargetRate(n int) error {
	if err := validateRate(n); err != nil {
		return err
	}
	s.rate.Store(int64(n))
	return nil
}

// TargetRate returns the current tick rate.
func (s *Scheduler) TargetRate() int {
	return int(s.rate.Load())
}

// SetVerbose toggles the per-second rate log line.
func (s *Scheduler) SetVerbose(v bool) {
	s.verbose.Store(v)
}

// SetFaultPolicy attaches a policy; nil restores the default.
func (s *Scheduler) SetFaultPolicy(p FaultPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = s.fallback
	}
	s.policy = p
}

// SetLifecycleHooks attaches hooks; nil restores the no-op hooks.
func (s *Scheduler) SetLifecycleHooks(h LifecycleHooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		h = NoopHooks{}
	}
	s.hooks = h
}

// Metrics returns the live frame metrics.
func (s *Scheduler) Metrics() *FrameMetrics {
	return s.metrics
}

// Status returns the latest published snapshot. Values lag the loop by at
// most one outer pass.
func (s *Scheduler) Status() Status {
	return *s.status.Load()
}

// run is the loop body. It owns every cortex phase call; initDone receives
// the init phase outcome exactly once.
func (s *Scheduler) run(initDone chan<- error) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.publishStatus()
	}()

	if fault := s.callPhase(PhaseInit, s.cortex.Init); fault != nil {
		s.faultCount.Add(1)
		if s.decide(*fault) == ActionStop {
			// Flip running before unblocking Start so the caller sees a
			// stopped scheduler the moment Start returns the init fault.
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.publishStatus()
			initDone <- fault
			return
		}
	}
	initDone <- nil

	s.currentHooks().OnLoopStart()

	lastTime := s.clock.Now()
	reportStart := lastTime
	var unprocessed float64
	var ticksInWindow, framesInWindow int

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if s.IsPaused() {
			s.clock.Sleep(pausedSleep)
			continue
		}

		rate := int(s.rate.Load())
		nsPerTick := float64(time.Second) / float64(rate)
		delta := 1.0 / float64(rate)

		now := s.clock.Now()
		unprocessed += float64(now.Sub(lastTime)) / nsPerTick
		lastTime = now

		updated := false
		for unprocessed >= 1 {
			s.tickCount.Add(1)
			phaseStart := s.clock.Now()
			fault := s.callPhase(PhaseUpdate, func() error {
				return s.cortex.Update(s.locator.Get(), delta)
			})
			dur := s.clock.Now().Sub(phaseStart)
			s.metrics.update.Record(float64(dur) / float64(time.Millisecond))
			if s.observe != nil {
				s.observe(PhaseUpdate, dur)
			}
			unprocessed--
			updated = true
			ticksInWindow++

			if fault != nil {
				s.faultCount.Add(1)
				if s.decide(*fault) == ActionStop {
					return
				}
			} else if s.afterUpdate != nil {
				s.afterUpdate()
			}
		}

		if updated {
			phaseStart := s.clock.Now()
			fault := s.callPhase(PhaseRender, s.cortex.Render)
			dur := s.clock.Now().Sub(phaseStart)
			s.metrics.render.Record(float64(dur) / float64(time.Millisecond))
			if s.observe != nil {
				s.observe(PhaseRender, dur)
			}

			if fault != nil {
				s.faultCount.Add(1)
				if s.decide(*fault) == ActionStop {
					return
				}
			} else {
				s.frameCount.Add(1)
				framesInWindow++
				if s.present != nil {
					s.present()
				}
			}
		}

		s.publishStatus()

		if now.Sub(reportStart) >= time.Second {
			if s.verbose.Load() {
				log.Printf("📊 Scheduler %q: %d TPS, %d FPS (update avg %.2fms, render avg %.2fms)",
					s.labelName(), ticksInWindow, framesInWindow,
					s.metrics.update.Average(), s.metrics.render.Average())
			}
			ticksInWindow, framesInWindow = 0, 0
			reportStart = now
		}

		s.clock.Sleep(loopYield)
	}
}

// callPhase runs one cortex phase with containment: an error return becomes
// a Fault, and a panic is recovered into a Fault so it never escapes the
// loop goroutine.
func (s *Scheduler) callPhase(phase Phase, fn func() error) (fault *Fault) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Recovered %s phase panic: %v\n%s", phase, r, debug.Stack())
			fault = &Fault{Phase: phase, Tick: s.tickCount.Load(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &Fault{Phase: phase, Tick: s.tickCount.Load(), Err: err}
	}
	return nil
}

// decide routes a fault through the attached policy. A policy that panics
// mid-decision escalates to the construction-time default.
func (s *Scheduler) decide(f Fault) Action {
	log.Printf("⚠️ %v", f)

	action, ok := s.safeHandle(s.currentPolicy(), f)
	if !ok {
		action = s.fallback.HandleFault(f)
	}
	if action == ActionStop {
		log.Printf("🛑 Scheduler %q stopping on %s phase fault", s.labelName(), f.Phase)
	}
	return action
}

// safeHandle invokes the policy, reporting ok=false if it panicked.
func (s *Scheduler) safeHandle(policy FaultPolicy, f Fault) (action Action, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ Fault policy panicked (%v); applying default policy", r)
			ok = false
		}
	}()
	return policy.HandleFault(f), true
}

// publishStatus refreshes the lock-free status snapshot.
func (s *Scheduler) publishStatus() {
	s.mu.RLock()
	st := &Status{
		Label:      s.label,
		Running:    s.running,
		Paused:     s.paused,
		TargetRate: int(s.rate.Load()),
		Ticks:      s.tickCount.Load(),
		Frames:     s.frameCount.Load(),
		Faults:     s.faultCount.Load(),
		Metrics:    s.metrics.Snapshot(),
	}
	s.mu.RUnlock()
	s.status.Store(st)
}

func (s *Scheduler) currentPolicy() FaultPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *Scheduler) currentHooks() LifecycleHooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

func (s *Scheduler) labelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}
