// Package lineshape evaluates the saturation absorption profile g(Δ) of a
// semi-solid MT pool. Offsets are angular frequencies [rad/s] measured from
// water, so the pool's own chemical shift is subtracted here.
package lineshape

import (
	"math"

	"github.com/san-kum/cestsim/internal/pools"
)

// Evaluator returns g(Δ) for an RF offset Δ in rad/s.
type Evaluator interface {
	Value(delta float64) float64
}

// New returns the evaluator matching the pool's lineshape tag.
func New(mt pools.MTPool, scanner pools.ScannerConfig) Evaluator {
	w0 := scanner.W0()
	t2 := 0.0
	if mt.R2 > 0 {
		t2 = 1 / mt.R2
	}
	center := mt.DW * w0

	switch mt.Lineshape {
	case pools.LineshapeLorentzian:
		return Lorentzian{T2: t2, Center: center}
	case pools.LineshapeSuperLorentzian:
		return NewSuperLorentzian(t2, center, w0, DefaultSamples)
	default:
		return None{}
	}
}

// None disables saturation transfer; the MT pool only relaxes.
type None struct{}

func (None) Value(float64) float64 { return 0 }

// Lorentzian is T2 / (1 + ((Δ-center)·T2)²).
type Lorentzian struct {
	T2     float64
	Center float64
}

func (l Lorentzian) Value(delta float64) float64 {
	x := (delta - l.Center) * l.T2
	return l.T2 / (1 + x*x)
}

// Func adapts a plain function, mainly for tests and custom profiles.
type Func func(delta float64) float64

func (f Func) Value(delta float64) float64 { return f(delta) }

var sqrt2OverPi = math.Sqrt(2 / math.Pi)
