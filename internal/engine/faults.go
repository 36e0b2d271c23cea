package engine

import "fmt"

// Phase identifies which cortex phase produced a fault.
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseUpdate
	PhaseRender
)

// String returns the lowercase phase name used in logs and metric labels.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseUpdate:
		return "update"
	case PhaseRender:
		return "render"
	default:
		return "unknown"
	}
}

// Fault describes a contained failure raised by a single cortex phase.
// Faults are values, not escaping panics: the loop catches phase errors
// (and recovered panics) and routes them through the attached FaultPolicy
// instead of letting them kill the process.
type Fault struct {
	Phase Phase  // which phase failed
	Tick  uint64 // update-call count at the time of the failure
	Err   error  // the underlying failure
}

// Error implements the error interface.
func (f Fault) Error() string {
	return fmt.Sprintf("%s phase fault at tick %d: %v", f.Phase, f.Tick, f.Err)
}

// Unwrap exposes the underlying error for errors.Is and errors.As.
func (f Fault) Unwrap() error {
	return f.Err
}
