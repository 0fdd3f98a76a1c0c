package sim

import (
	"fmt"
	"time"
)

// Status is the lifecycle of a Runner. Done and Failed are terminal.
type Status int32

const (
	Idle Status = iota
	RunningSequential
	RunningParallel
	Done
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case RunningSequential:
		return "running (sequential)"
	case RunningParallel:
		return "running (parallel)"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type Mode int

const (
	Sequential Mode = iota
	Parallel
)

func (m Mode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}

// Result is the outcome of one run.
type Result struct {
	Buffer   *ResultBuffer
	Mode     Mode
	Strategy string
	// Steps counts matrix exponentials taken across all trajectories.
	Steps   int
	Elapsed time.Duration
}
