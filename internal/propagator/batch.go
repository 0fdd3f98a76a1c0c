package propagator

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// BatchError reports which trajectory of a batch failed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("trajectory %d: %v", e.Index, e.Err) }
func (e *BatchError) Unwrap() error { return e.Err }

// Batch steps a stack of independent trajectories. Each index owns its own
// matrix, equilibrium vector and state; nothing is shared while stepping.
type Batch struct {
	steppers []*Stepper
	minChunk int
}

func NewBatch(p Propagator, n, dim int) *Batch {
	b := &Batch{steppers: make([]*Stepper, n), minChunk: 4}
	for i := range b.steppers {
		b.steppers[i] = NewStepper(p, dim)
	}
	return b
}

func (b *Batch) Len() int { return len(b.steppers) }

// Steps sums the step counters of all trajectories.
func (b *Batch) Steps() int {
	n := 0
	for _, s := range b.steppers {
		n += s.Steps()
	}
	return n
}

// Step advances every trajectory by dt. The lowest failing index is reported.
func (b *Batch) Step(as []*mat.Dense, cs []*mat.VecDense, ms []dynamo.State, dt float64) error {
	n := len(b.steppers)
	if len(as) != n || len(cs) != n || len(ms) != n {
		return fmt.Errorf("%w: batch of %d got %d matrices, %d vectors, %d states",
			dynamo.ErrDimensionMismatch, n, len(as), len(cs), len(ms))
	}

	errs := make([]error, n)
	dynamo.ParallelFor(n, b.minChunk, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = b.steppers[i].Step(as[i], cs[i], ms[i], dt)
		}
	})

	for i, err := range errs {
		if err != nil {
			return &BatchError{Index: i, Err: err}
		}
	}
	return nil
}
