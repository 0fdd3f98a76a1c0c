package seq

import (
	"fmt"
	"math"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// Sequence is an ordered, read-only list of blocks plus the definitions a
// sequence file carries next to them.
type Sequence struct {
	Blocks     []Block
	OffsetsPPM []float64
	RunM0Scan  bool
}

func (s *Sequence) Add(blocks ...Block) {
	s.Blocks = append(s.Blocks, blocks...)
}

func (s *Sequence) Len() int { return len(s.Blocks) }

// Readouts counts the readout blocks, which is the column count of a result.
func (s *Sequence) Readouts() int {
	n := 0
	for _, b := range s.Blocks {
		if b.Kind() == KindReadout {
			n++
		}
	}
	return n
}

// TotalDuration sums all block durations in seconds.
func (s *Sequence) TotalDuration() float64 {
	t := 0.0
	for _, b := range s.Blocks {
		t += b.Duration()
	}
	return t
}

// M0Prefix is the number of leading blocks belonging to the unsaturated
// reference scan: everything up to and including the first readout. It is 0
// when the sequence has no M0 scan.
func (s *Sequence) M0Prefix() (int, error) {
	if !s.RunM0Scan {
		return 0, nil
	}
	for i, b := range s.Blocks {
		if b.Kind() == KindReadout {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: m0 scan declared but sequence has no readout", dynamo.ErrConfiguration)
}

// Validate rejects blocks the runner cannot simulate.
func (s *Sequence) Validate() error {
	for i, b := range s.Blocks {
		if b == nil {
			return fmt.Errorf("%w: block %d is nil", dynamo.ErrConfiguration, i+1)
		}
		d := b.Duration()
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: block %d (%s) has invalid duration %g", dynamo.ErrConfiguration, i+1, b.Kind(), d)
		}
		if rf, ok := b.(*RFPulse); ok {
			if len(rf.Samples) == 0 || rf.Length <= 0 {
				return fmt.Errorf("%w: block %d has an empty rf waveform", dynamo.ErrUnsupportedWaveform, i+1)
			}
		}
	}
	return nil
}
