package seq

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// AmplitudeThreshold is the magnitude in Hz below which an RF sample counts
// as switched off.
const AmplitudeThreshold = 1e-6

// Waveform is an RF pulse discretised into sub-steps of equal length Dt,
// followed by Tail seconds of free precession.
type Waveform struct {
	Amp   []float64
	Phase []float64
	Dt    float64
	Tail  float64
	// Stride is the subsampling factor applied to the raw samples.
	Stride int
}

func (w Waveform) Steps() int { return len(w.Amp) }

// Active is the time spent with RF on.
func (w Waveform) Active() float64 { return w.Dt * float64(len(w.Amp)) }

// Equal reports whether two waveforms drive identical sub-steps.
func (w Waveform) Equal(o Waveform) bool {
	if len(w.Amp) != len(o.Amp) || w.Dt != o.Dt || w.Tail != o.Tail {
		return false
	}
	for i := range w.Amp {
		if w.Amp[i] != o.Amp[i] || w.Phase[i] != o.Phase[i] {
			return false
		}
	}
	return true
}

// Prepare turns raw pulse samples into simulation sub-steps.
//
// Samples at or below AmplitudeThreshold are dropped and their time is
// propagated afterwards as Tail. A pulse with a single distinct amplitude and
// phase becomes one sub-step over all active samples. A pulse with more
// distinct values than maxSamples is subsampled with an integer stride, each
// kept sample standing for stride raw samples. Anything in between is
// rejected with ErrUnsupportedWaveform.
func Prepare(p *RFPulse, maxSamples int) (Waveform, error) {
	if len(p.Samples) == 0 || p.Length <= 0 {
		return Waveform{}, fmt.Errorf("%w: empty waveform", dynamo.ErrUnsupportedWaveform)
	}
	if maxSamples < 1 {
		return Waveform{}, fmt.Errorf("%w: max pulse samples must be positive, got %d", dynamo.ErrConfiguration, maxSamples)
	}

	dt := p.Dwell()
	amp := make([]float64, 0, len(p.Samples))
	ph := make([]float64, 0, len(p.Samples))
	for _, s := range p.Samples {
		a := cmplx.Abs(s)
		if a > AmplitudeThreshold {
			amp = append(amp, a)
			ph = append(ph, cmplx.Phase(s))
		}
	}
	tail := float64(len(p.Samples)-len(amp)) * dt

	if len(amp) == 0 {
		return Waveform{Dt: dt, Tail: tail, Stride: 1}, nil
	}

	switch n := distinct(amp, ph); {
	case n == 1:
		return Waveform{
			Amp:    amp[:1],
			Phase:  ph[:1],
			Dt:     dt * float64(len(amp)),
			Tail:   tail,
			Stride: len(amp),
		}, nil
	case n > maxSamples:
		stride := int(math.Ceil(float64(len(amp)) / float64(maxSamples)))
		w := Waveform{Dt: dt * float64(stride), Tail: tail, Stride: stride}
		for i := 0; i < len(amp); i += stride {
			w.Amp = append(w.Amp, amp[i])
			w.Phase = append(w.Phase, ph[i])
		}
		return w, nil
	default:
		return Waveform{}, fmt.Errorf("%w: %d distinct samples with max pulse samples %d cannot be stepped evenly",
			dynamo.ErrUnsupportedWaveform, n, maxSamples)
	}
}

// distinct is the larger of the unique amplitude and unique phase counts.
func distinct(amp, ph []float64) int {
	ua := make(map[float64]struct{}, len(amp))
	up := make(map[float64]struct{}, len(ph))
	for i := range amp {
		ua[amp[i]] = struct{}{}
		up[ph[i]] = struct{}{}
	}
	return max(len(ua), len(up))
}

// PhaseDrift is the off-resonance phase in [0, 2π) accumulated while a pulse
// at freq Hz is on for active seconds.
func PhaseDrift(freq, active float64) float64 {
	return wrapPhase(2 * math.Pi * freq * active)
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x
}
