package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrConfiguration indicates a malformed or incomplete pool model.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrUnsupportedWaveform indicates a pulse whose sample count cannot be
	// represented under the max pulse samples policy.
	ErrUnsupportedWaveform = errors.New("dynamo: unsupported rf waveform")

	// ErrBatchingPrecondition indicates the sequence cannot be replayed in
	// parallel across offsets.
	ErrBatchingPrecondition = errors.New("dynamo: batching precondition violated")

	// ErrNumericalInstability indicates a propagation produced non-finite values
	// or a decomposition failed.
	ErrNumericalInstability = errors.New("dynamo: numerical instability")

	// ErrRunnerState indicates a runner was used outside its Idle state.
	ErrRunnerState = errors.New("dynamo: runner is not idle")

	// ErrDimensionMismatch indicates mismatched state/matrix dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")
)

// SimulationError wraps an error with the position in the sequence where it
// happened. Offset is -1 for sequential runs.
type SimulationError struct {
	Event   int
	SubStep int
	Offset  int
	Wrapped error
}

func (e *SimulationError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("event %d, sub-step %d, offset %d: %v", e.Event, e.SubStep, e.Offset, e.Wrapped)
	}
	return fmt.Sprintf("event %d, sub-step %d: %v", e.Event, e.SubStep, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
