package engine

// Action is a FaultPolicy's verdict on a contained fault.
type Action uint8

const (
	// ActionContinue keeps the loop running; the failing tick's effects are
	// accepted as incomplete.
	ActionContinue Action = iota

	// ActionStop exits the loop. No further phases or callbacks fire.
	ActionStop
)

// FaultPolicy decides whether the loop survives a phase fault. At most one
// policy is attached to a scheduler; nil falls back to DefaultPolicy with
// the scheduler's stop-on-fault setting, so the no-policy branch never
// needs a nil check inside the loop.
type FaultPolicy interface {
	HandleFault(f Fault) Action
}

// FaultPolicyFunc adapts a plain function to a FaultPolicy.
type FaultPolicyFunc func(f Fault) Action

func (fn FaultPolicyFunc) HandleFault(f Fault) Action { return fn(f) }

// DefaultPolicy returns the fallback policy: ActionStop for every fault
// when stop is true, otherwise ActionContinue for every fault.
func DefaultPolicy(stop bool) FaultPolicy {
	return defaultPolicy{stop: stop}
}

type defaultPolicy struct {
	stop bool
}

func (p defaultPolicy) HandleFault(Fault) Action {
	if p.stop {
		return ActionStop
	}
	return ActionContinue
}

// LifecycleHooks observes scheduler state transitions. OnLoopStart runs on
// the loop goroutine after a successful init phase; OnPause and OnResume
// run on the goroutine that triggered the transition, and only when the
// state actually changed.
type LifecycleHooks interface {
	OnLoopStart()
	OnPause()
	OnResume()
}

// NoopHooks is the default LifecycleHooks implementation.
type NoopHooks struct{}

func (NoopHooks) OnLoopStart() {}
func (NoopHooks) OnPause()     {}
func (NoopHooks) OnResume()    {}
