package dynamo

import (
	"math"
)

// State is a magnetization vector. Its layout is owned by the pool model.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaxAbsDiff returns the largest element-wise deviation between s and other.
func (s State) MaxAbsDiff(other State) float64 {
	d := 0.0
	for i := range s {
		if i >= len(other) {
			break
		}
		d = math.Max(d, math.Abs(s[i]-other[i]))
	}
	return d
}

// Observer receives every stored readout in column order.
type Observer interface {
	OnReadout(index int, m State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(index int, m State)

func (f ObserverFunc) OnReadout(index int, m State) { f(index, m) }
