package pools

import (
	"fmt"
	"math"
	"strings"
)

// Lineshape tags the saturation absorption profile of an MT pool.
type Lineshape int

const (
	LineshapeNone Lineshape = iota
	LineshapeLorentzian
	LineshapeSuperLorentzian
)

func (l Lineshape) String() string {
	switch l {
	case LineshapeLorentzian:
		return "Lorentzian"
	case LineshapeSuperLorentzian:
		return "SuperLorentzian"
	default:
		return "None"
	}
}

// ParseLineshape accepts the names used in tissue configuration files.
// An empty name is reported as an error so a present MT pool always states
// its lineshape explicitly.
func ParseLineshape(name string) (Lineshape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lorentzian":
		return LineshapeLorentzian, nil
	case "superlorentzian", "super_lorentzian", "super-lorentzian":
		return LineshapeSuperLorentzian, nil
	case "none":
		return LineshapeNone, nil
	case "":
		return LineshapeNone, fmt.Errorf("lineshape not specified")
	default:
		return LineshapeNone, fmt.Errorf("unknown lineshape %q", name)
	}
}

// Pool is one proton population. Rates are in Hz, the chemical shift in ppm
// relative to water. Water carries DW=0 and K=0.
type Pool struct {
	Name string
	R1   float64
	R2   float64
	F    float64
	DW   float64
	K    float64
}

// MTPool is the semi-solid pool. It only exchanges longitudinal
// magnetization with water.
type MTPool struct {
	Pool
	Lineshape Lineshape
}

// ScannerConfig holds constants fixed for a whole run.
type ScannerConfig struct {
	B0              float64 // [T]
	Gamma           float64 // [rad/(uT s)]
	B0Inhomogeneity float64 // [ppm]
	RelB1           float64
}

// DefaultGamma is the proton gyromagnetic ratio in rad/(uT s).
const DefaultGamma = 267.5153

func DefaultScanner() ScannerConfig {
	return ScannerConfig{B0: 3, Gamma: DefaultGamma, RelB1: 1}
}

// W0 is the angular frequency of one ppm at the configured field [rad/s].
func (s ScannerConfig) W0() float64 { return s.B0 * s.Gamma }

// DW0 is the angular B0 inhomogeneity offset [rad/s].
func (s ScannerConfig) DW0() float64 { return s.W0() * s.B0Inhomogeneity }

// HzPerPPM converts a chemical shift in ppm to a frequency offset in Hz.
func (s ScannerConfig) HzPerPPM() float64 { return s.W0() / (2 * math.Pi) }

// Options governs integration policy, not physics.
type Options struct {
	ResetInitMag    bool
	MaxPulseSamples int
	Parallel        bool
}

const DefaultMaxPulseSamples = 100

func DefaultOptions() Options {
	return Options{ResetInitMag: true, MaxPulseSamples: DefaultMaxPulseSamples}
}
