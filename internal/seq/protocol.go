package seq

import (
	"fmt"
	"math"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// Protocol describes a z-spectrum saturation experiment: per offset a
// recovery delay, a train of saturation pulses and a readout, optionally
// preceded by an unsaturated M0 scan.
type Protocol struct {
	// OffsetsPPM, when set, overrides OffsetRange/NumOffsets.
	OffsetsPPM  []float64 `yaml:"offsets_ppm,omitempty" json:"offsets_ppm,omitempty"`
	OffsetRange float64   `yaml:"offset_range" json:"offset_range"`
	NumOffsets  int       `yaml:"num_offsets" json:"num_offsets"`

	RunM0Scan  bool    `yaml:"run_m0_scan" json:"run_m0_scan"`
	M0Recovery float64 `yaml:"m0_t_rec" json:"m0_t_rec"`
	Recovery   float64 `yaml:"t_rec" json:"t_rec"`

	B1              float64 `yaml:"b1" json:"b1"`
	PulseDuration   float64 `yaml:"t_p" json:"t_p"`
	InterPulseDelay float64 `yaml:"t_d" json:"t_d"`
	NumPulses       int     `yaml:"n_pulses" json:"n_pulses"`
	Shape           string  `yaml:"shape" json:"shape"`
	SamplesPerPulse int     `yaml:"samples_per_pulse" json:"samples_per_pulse"`
	Spoiling        bool    `yaml:"spoiling" json:"spoiling"`
}

// DefaultProtocol is a 2 s continuous-wave APT saturation at 2.22 µT over
// ±7 ppm with an M0 scan.
func DefaultProtocol() Protocol {
	return Protocol{
		OffsetRange:     7,
		NumOffsets:      30,
		RunM0Scan:       true,
		M0Recovery:      12,
		Recovery:        2.4,
		B1:              2.22,
		PulseDuration:   2,
		NumPulses:       1,
		Shape:           "block",
		SamplesPerPulse: 200,
	}
}

// Offsets returns the saturation offsets in ppm.
func (p Protocol) Offsets() []float64 {
	if len(p.OffsetsPPM) > 0 {
		return append([]float64(nil), p.OffsetsPPM...)
	}
	return linspace(-p.OffsetRange, p.OffsetRange, p.NumOffsets)
}

func (p Protocol) validate() error {
	switch {
	case len(p.OffsetsPPM) == 0 && p.NumOffsets < 1:
		return fmt.Errorf("%w: protocol needs at least one offset", dynamo.ErrConfiguration)
	case p.NumPulses < 1:
		return fmt.Errorf("%w: protocol needs at least one pulse, got %d", dynamo.ErrConfiguration, p.NumPulses)
	case p.PulseDuration <= 0:
		return fmt.Errorf("%w: pulse duration must be positive, got %g", dynamo.ErrConfiguration, p.PulseDuration)
	case p.B1 < 0:
		return fmt.Errorf("%w: b1 must not be negative, got %g", dynamo.ErrConfiguration, p.B1)
	case p.SamplesPerPulse < 1:
		return fmt.Errorf("%w: samples per pulse must be positive, got %d", dynamo.ErrConfiguration, p.SamplesPerPulse)
	case p.Recovery < 0 || p.M0Recovery < 0 || p.InterPulseDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", dynamo.ErrConfiguration)
	}
	return nil
}

// Build generates the block list for a scanner at b0 tesla with gyromagnetic
// ratio gamma in rad/(µT·s). Pulses within a train carry the phase the
// previous pulses accumulated off resonance.
func (p Protocol) Build(b0, gamma float64) (*Sequence, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	shape, err := ParseShape(p.Shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dynamo.ErrConfiguration, err)
	}

	hzPerPPM := b0 * gamma / (2 * math.Pi)
	b1Hz := p.B1 * gamma / (2 * math.Pi)
	env := shape.Envelope(p.SamplesPerPulse)

	s := &Sequence{OffsetsPPM: p.Offsets(), RunM0Scan: p.RunM0Scan}
	if p.RunM0Scan {
		s.Add(Delay{Length: p.M0Recovery}, Readout{})
	}

	for _, ppm := range s.OffsetsPPM {
		freq := ppm * hzPerPPM
		s.Add(Delay{Length: p.Recovery})

		accum := 0.0
		for n := 0; n < p.NumPulses; n++ {
			rf := newPulse(env, b1Hz, p.PulseDuration)
			rf.FreqOffset = freq
			rf.PhaseOffset = accum
			s.Add(rf)
			accum = wrapPhase(accum + PhaseDrift(freq, activeTime(rf)))

			if n < p.NumPulses-1 && p.InterPulseDelay > 0 {
				s.Add(Delay{Length: p.InterPulseDelay})
			}
		}
		if p.Spoiling {
			s.Add(Spoiler{})
		}
		s.Add(Readout{})
	}
	return s, nil
}

func newPulse(env []float64, b1Hz, duration float64) *RFPulse {
	samples := make([]complex128, len(env))
	for i, e := range env {
		samples[i] = complex(e*b1Hz, 0)
	}
	return &RFPulse{Samples: samples, Length: duration}
}

func activeTime(p *RFPulse) float64 {
	n := 0
	for _, s := range p.Samples {
		if real(s)*real(s)+imag(s)*imag(s) > AmplitudeThreshold*AmplitudeThreshold {
			n++
		}
	}
	return float64(n) * p.Dwell()
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
