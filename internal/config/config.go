package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
	"github.com/san-kum/cestsim/internal/seq"
)

const (
	DefaultB0         = 3.0
	DefaultScale      = 1.0
	DefaultPropagator = "eigen"
)

type Config struct {
	Scanner  ScannerConfig `yaml:"scanner"`
	Water    PoolConfig    `yaml:"water_pool"`
	CEST     []PoolConfig  `yaml:"cest_pools"`
	MT       *MTPoolConfig `yaml:"mt_pool,omitempty"`
	Scale    float64       `yaml:"scale"`
	Options  OptionsConfig `yaml:"options"`
	Protocol seq.Protocol  `yaml:"protocol"`
}

type ScannerConfig struct {
	B0              float64 `yaml:"b0"`
	Gamma           float64 `yaml:"gamma"`
	B0Inhomogeneity float64 `yaml:"b0_inhomogeneity"`
	RelB1           float64 `yaml:"rel_b1"`
}

// PoolConfig accepts either rates (r1, r2 in Hz) or times (t1, t2 in s);
// rates win when both are given.
type PoolConfig struct {
	Name string  `yaml:"name,omitempty"`
	R1   float64 `yaml:"r1,omitempty"`
	R2   float64 `yaml:"r2,omitempty"`
	T1   float64 `yaml:"t1,omitempty"`
	T2   float64 `yaml:"t2,omitempty"`
	F    float64 `yaml:"f"`
	DW   float64 `yaml:"dw,omitempty"`
	K    float64 `yaml:"k,omitempty"`
}

type MTPoolConfig struct {
	PoolConfig `yaml:",inline"`
	Lineshape  string `yaml:"lineshape"`
}

type OptionsConfig struct {
	ResetInitMag    bool   `yaml:"reset_init_mag"`
	MaxPulseSamples int    `yaml:"max_pulse_samples"`
	Parallel        bool   `yaml:"par_calc"`
	Propagator      string `yaml:"propagator"`
}

func DefaultConfig() *Config {
	return &Config{
		Scanner: ScannerConfig{
			B0:    DefaultB0,
			Gamma: pools.DefaultGamma,
			RelB1: 1,
		},
		Water: PoolConfig{Name: "water", T1: 1.3, T2: 75e-3, F: 1},
		CEST:  []PoolConfig{amide(1 / 1.3)},
		Scale: DefaultScale,
		Options: OptionsConfig{
			ResetInitMag:    true,
			MaxPulseSamples: pools.DefaultMaxPulseSamples,
			Propagator:      DefaultPropagator,
		},
		Protocol: seq.DefaultProtocol(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy so presets can be overridden safely.
func (c *Config) Clone() *Config {
	cp := *c
	cp.CEST = append([]PoolConfig(nil), c.CEST...)
	if c.MT != nil {
		mt := *c.MT
		cp.MT = &mt
	}
	cp.Protocol.OffsetsPPM = append([]float64(nil), c.Protocol.OffsetsPPM...)
	return &cp
}

func (p PoolConfig) toPool(name string) (pools.Pool, error) {
	r1, r2 := p.R1, p.R2
	if r1 == 0 && p.T1 > 0 {
		r1 = 1 / p.T1
	}
	if r2 == 0 && p.T2 > 0 {
		r2 = 1 / p.T2
	}
	if r1 == 0 || r2 == 0 {
		return pools.Pool{}, fmt.Errorf("%w: %s needs r1/r2 or t1/t2", dynamo.ErrConfiguration, name)
	}
	if p.Name != "" {
		name = p.Name
	}
	return pools.Pool{Name: name, R1: r1, R2: r2, F: p.F, DW: p.DW, K: p.K}, nil
}

func (c *Config) ScannerConfig() pools.ScannerConfig {
	return pools.ScannerConfig{
		B0:              c.Scanner.B0,
		Gamma:           c.Scanner.Gamma,
		B0Inhomogeneity: c.Scanner.B0Inhomogeneity,
		RelB1:           c.Scanner.RelB1,
	}
}

// ToModel validates the pools and builds the immutable model.
func (c *Config) ToModel() (*pools.Model, error) {
	water, err := c.Water.toPool("water")
	if err != nil {
		return nil, err
	}
	cest := make([]pools.Pool, len(c.CEST))
	for i, pc := range c.CEST {
		if cest[i], err = pc.toPool(fmt.Sprintf("cest_%d", i+1)); err != nil {
			return nil, err
		}
	}

	var mt *pools.MTPool
	if c.MT != nil {
		p, err := c.MT.toPool("mt")
		if err != nil {
			return nil, err
		}
		ls, err := pools.ParseLineshape(c.MT.Lineshape)
		if err != nil {
			return nil, fmt.Errorf("%w: mt pool: %v", dynamo.ErrConfiguration, err)
		}
		mt = &pools.MTPool{Pool: p, Lineshape: ls}
	}
	return pools.New(water, cest, mt, c.ScannerConfig())
}

func (c *Config) PoolOptions() pools.Options {
	return pools.Options{
		ResetInitMag:    c.Options.ResetInitMag,
		MaxPulseSamples: c.Options.MaxPulseSamples,
		Parallel:        c.Options.Parallel,
	}
}

// Sequence generates the saturation protocol for the configured scanner.
func (c *Config) Sequence() (*seq.Sequence, error) {
	return c.Protocol.Build(c.Scanner.B0, c.Scanner.Gamma)
}
