package bench

import "fmt"

// State is the lifecycle of a Runner. Done and Aborted are final.
type State int32

const (
	StateIdle State = iota
	StateWarming
	StateMeasuring
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarming:
		return "warming"
	case StateMeasuring:
		return "measuring"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

func (s State) Final() bool {
	return s == StateDone || s == StateAborted
}

// WarmupError aborts a run during warmup. Call is 1-based; 0 means the input
// could not be bound.
type WarmupError struct {
	Call int
	Err  error
}

func (e *WarmupError) Error() string {
	if e.Call == 0 {
		return fmt.Sprintf("warmup failed preparing input: %v", e.Err)
	}
	return fmt.Sprintf("warmup call %d failed: %v", e.Call, e.Err)
}

func (e *WarmupError) Unwrap() error {
	return e.Err
}

// MeasuredCallError aborts a run during the timed loop. Iteration is 1-based.
type MeasuredCallError struct {
	Iteration int
	Err       error
}

func (e *MeasuredCallError) Error() string {
	return fmt.Sprintf("measured iteration %d failed: %v", e.Iteration, e.Err)
}

func (e *MeasuredCallError) Unwrap() error {
	return e.Err
}
