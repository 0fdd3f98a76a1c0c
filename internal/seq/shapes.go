package seq

import (
	"fmt"
	"strings"
)

// Shape selects the envelope of generated saturation pulses.
type Shape int

const (
	ShapeBlock Shape = iota
	ShapeGauss
)

func (s Shape) String() string {
	switch s {
	case ShapeBlock:
		return "block"
	case ShapeGauss:
		return "gauss"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(name) {
	case "block", "cw", "":
		return ShapeBlock, nil
	case "gauss", "gaussian":
		return ShapeGauss, nil
	}
	return 0, fmt.Errorf("unknown pulse shape %q", name)
}

// Envelope returns n non-negative samples of the shape normalised to a mean
// of one.
func (s Shape) Envelope(n int) []float64 {
	env := make([]float64, n)
	if n == 0 {
		return env
	}
	switch s {
	case ShapeGauss:
		sum := 0.0
		for i := range env {
			x := 0.0
			if n > 1 {
				x = float64(i) / float64(n-1)
			}
			env[i] = max(0, gaussSiemens(x))
			sum += env[i]
		}
		mean := sum / float64(n)
		for i := range env {
			env[i] /= mean
		}
	default:
		for i := range env {
			env[i] = 1
		}
	}
	return env
}

// gaussSiemens is the polynomial fit of the vendor gaussian saturation pulse
// on x in [0, 1].
func gaussSiemens(x float64) float64 {
	return -25.88*pow(x, 6) + 76.88*pow(x, 5) - 67.47*pow(x, 4) +
		8.011*pow(x, 3) + 8.034*x*x + 0.4235*x - 0.0002965
}

func pow(x float64, n int) float64 {
	r := 1.0
	for i := 0; i < n; i++ {
		r *= x
	}
	return r
}
