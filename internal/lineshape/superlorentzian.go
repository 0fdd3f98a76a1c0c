package lineshape

import "math"

// DefaultSamples is the number of quadrature points over cos(theta) in [0, 1].
const DefaultSamples = 101

// tangentWeight scales the finite-difference tangents of the spline.
const tangentWeight = 30.0

// SuperLorentzian integrates the dipolar orientation distribution numerically
// for offsets beyond one ppm. Inside that width the integrand is singular and
// the value is taken from a cubic Hermite spline through four quadrature
// points straddling the resonance. The spline is not matched to the
// quadrature at ±Width, so the value steps by a few percent there.
type SuperLorentzian struct {
	T2      float64
	Center  float64
	Width   float64
	Samples int

	px [4]float64
	py [4]float64
}

func NewSuperLorentzian(t2, center, width float64, samples int) *SuperLorentzian {
	if samples < 2 {
		samples = DefaultSamples
	}
	s := &SuperLorentzian{T2: t2, Center: center, Width: width, Samples: samples}
	s.px = [4]float64{-300 - width, -100 - width, 100 + width, 300 + width}
	for i, x := range s.px {
		s.py[i] = s.quadrature(x)
	}
	return s
}

func (s *SuperLorentzian) Value(delta float64) float64 {
	d := delta - s.Center
	if math.Abs(d) >= s.Width {
		return s.quadrature(d)
	}
	return s.spline(d)
}

func (s *SuperLorentzian) quadrature(d float64) float64 {
	step := 1 / float64(s.Samples-1)
	sum := 0.0
	for i := 0; i < s.Samples; i++ {
		u := step * float64(i)
		c := math.Abs(3*u*u - 1)
		if c == 0 {
			continue
		}
		r := d * s.T2 / c
		sum += sqrt2OverPi * s.T2 / c * math.Exp(-2*r*r)
	}
	return sum * math.Pi * step
}

func (s *SuperLorentzian) spline(d float64) float64 {
	d0 := tangentWeight * (s.py[1] - s.py[0])
	d1 := tangentWeight * (s.py[3] - s.py[2])

	c := math.Abs((d - s.px[1] + 1) / (s.px[2] - s.px[1] + 1))
	c2, c3 := c*c, c*c*c

	h0 := 2*c3 - 3*c2 + 1
	h1 := -2*c3 + 3*c2
	h2 := c3 - 2*c2 + c
	h3 := c3 - c2

	return h0*s.py[1] + h1*s.py[2] + h2*d0 + h3*d1
}
