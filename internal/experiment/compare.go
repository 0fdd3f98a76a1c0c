package experiment

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cestsim/internal/config"
)

// Comparison holds the same configuration run under two strategies.
type Comparison struct {
	Strategies [2]string
	Elapsed    [2]time.Duration
	// MaxDeviation is the largest absolute difference between any two
	// corresponding readout entries.
	MaxDeviation float64
	// MaxZDeviation is the same measure on the normalised Z-spectrum.
	MaxZDeviation float64
}

// Compare runs cfg once per strategy and reports how far the results drift.
func Compare(ctx context.Context, cfg *config.Config, registry *Registry, a, b string) (*Comparison, error) {
	cmp := &Comparison{Strategies: [2]string{a, b}}
	outs := make([]*Outcome, 2)

	for i, name := range cmp.Strategies {
		c := cfg.Clone()
		c.Options.Propagator = name
		exp := New(c, registry)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		start := time.Now()
		out, err := exp.Run(ctx)
		if err != nil {
			return nil, err
		}
		cmp.Elapsed[i] = time.Since(start)
		outs[i] = out
	}

	ba, bb := outs[0].Result.Buffer, outs[1].Result.Buffer
	for j := 0; j < ba.Len() && j < bb.Len(); j++ {
		if d := ba.Column(j).MaxAbsDiff(bb.Column(j)); d > cmp.MaxDeviation {
			cmp.MaxDeviation = d
		}
	}
	za, zb := outs[0].Spectrum.Z, outs[1].Spectrum.Z
	if len(za) == len(zb) {
		cmp.MaxZDeviation = floats.Distance(za, zb, math.Inf(1))
	}
	return cmp, nil
}
