package config

import (
	"sort"

	"github.com/san-kum/cestsim/internal/seq"
)

var Presets = map[string]*Config{
	"amide_3t": DefaultConfig(),
	"gm_3t":    brain("gm", 3, 0.05, "Lorentzian", aptwPulsed()),
	"gm_7t":    brain("gm", 7, 0.05, "Lorentzian", aptwPulsed()),
	"wm_3t":    brain("wm", 3, 0.12, "SuperLorentzian", seq.DefaultProtocol()),
	"csf_3t":   csf(),
}

// aptwPulsed is the APTw_1 protocol: 20 gaussian pulses of 50 ms at a mean
// 2.22 µT, 40 ms apart.
func aptwPulsed() seq.Protocol {
	p := seq.DefaultProtocol()
	p.PulseDuration = 50e-3
	p.InterPulseDelay = 40e-3
	p.NumPulses = 20
	p.Shape = "gauss"
	p.SamplesPerPulse = 500
	p.Spoiling = true
	return p
}

func brain(tissue string, b0, fMT float64, lineshape string, protocol seq.Protocol) *Config {
	t1, t2, _ := Relaxation(tissue, b0)
	cfg := DefaultConfig()
	cfg.Scanner.B0 = b0
	cfg.Water = PoolConfig{Name: "water", T1: t1, T2: t2, F: 1}
	cfg.CEST = []PoolConfig{amide(1 / t1), creatine(1 / t1)}
	cfg.MT = semiSolid(fMT, lineshape)
	cfg.Scale = 0.5
	cfg.Options.MaxPulseSamples = 300
	cfg.Protocol = protocol
	return cfg
}

func csf() *Config {
	t1, t2, _ := Relaxation("csf", 3)
	cfg := DefaultConfig()
	cfg.Water = PoolConfig{Name: "water", T1: t1, T2: t2, F: 1}
	cfg.CEST = nil
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
