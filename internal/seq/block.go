// Package seq holds the decoded pulse sequence consumed by the runner: typed
// event blocks, the offset metadata stored alongside them, RF waveform
// preparation and a generator for standard saturation protocols.
package seq

import "fmt"

type Kind int

const (
	KindRF Kind = iota
	KindDelay
	KindSpoiler
	KindReadout
)

func (k Kind) String() string {
	switch k {
	case KindRF:
		return "RF PULSE"
	case KindDelay:
		return "DELAY"
	case KindSpoiler:
		return "SPOILER"
	case KindReadout:
		return "ADC"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Block is one event of a sequence. The concrete types are RFPulse, Delay,
// Spoiler and Readout.
type Block interface {
	Kind() Kind
	Duration() float64
}

// RFPulse is a shaped RF event. Samples are complex B1 values in Hz spread
// evenly over Duration seconds; FreqOffset is in Hz and PhaseOffset in rad.
type RFPulse struct {
	Samples     []complex128
	Length      float64
	FreqOffset  float64
	PhaseOffset float64
}

func (*RFPulse) Kind() Kind          { return KindRF }
func (p *RFPulse) Duration() float64 { return p.Length }

// Dwell is the time covered by one waveform sample.
func (p *RFPulse) Dwell() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	return p.Length / float64(len(p.Samples))
}

type Delay struct {
	Length float64
}

func (Delay) Kind() Kind          { return KindDelay }
func (d Delay) Duration() float64 { return d.Length }

// Spoiler is an ideal gradient crusher.
type Spoiler struct{}

func (Spoiler) Kind() Kind        { return KindSpoiler }
func (Spoiler) Duration() float64 { return 0 }

// Readout samples the magnetization.
type Readout struct{}

func (Readout) Kind() Kind        { return KindReadout }
func (Readout) Duration() float64 { return 0 }
