package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/experiment"
)

// Objective scores a finished run; the search minimises it.
type Objective func(out *experiment.Outcome) (float64, error)

// MaximizeAsym scores runs by −MTRasym at ppm, so the search finds the
// protocol with the strongest asymmetry there.
func MaximizeAsym(ppm float64) Objective {
	return func(out *experiment.Outcome) (float64, error) {
		v, ok := out.Spectrum.MTRAsym().Lookup(ppm)
		if !ok {
			return 0, fmt.Errorf("no symmetric offset pair at %g ppm", ppm)
		}
		return -v, nil
	}
}

// GridSearch evaluates every combination of parameter values.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	registry   *experiment.Registry
}

func NewGridSearch(params []string, ranges [][]float64, registry *experiment.Registry) *GridSearch {
	if registry == nil {
		registry = experiment.NewRegistry()
	}
	return &GridSearch{paramNames: params, ranges: ranges, registry: registry}
}

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

// Search runs base once per grid point. Failed points are recorded and
// skipped; an error is returned only when the context ends or nothing
// succeeded.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, objective Objective) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, 0, nil, fmt.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	var trials []Trial

	err := g.searchRecursive(ctx, 0, make(map[string]float64), base, objective, func(t Trial) {
		trials = append(trials, t)
		if t.Err == nil && t.Value < best {
			best = t.Value
			bestParams = t.Params
		}
	})
	if err != nil {
		return nil, 0, trials, err
	}
	if bestParams == nil {
		return nil, 0, trials, fmt.Errorf("all %d grid points failed", len(trials))
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *config.Config,
	objective Objective,
	record func(Trial),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		params := make(map[string]float64, len(current))
		for k, v := range current {
			params[k] = v
		}
		val, err := g.evaluate(ctx, base, params, objective)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.Warnf("grid point %v failed: %v", params, err)
		}
		record(Trial{Params: params, Value: val, Err: err})
		return nil
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		if err := g.searchRecursive(ctx, depth+1, current, base, objective, record); err != nil {
			return err
		}
	}
	delete(current, name)
	return nil
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, params map[string]float64, objective Objective) (float64, error) {
	cfg := base.Clone()
	if err := cfg.ApplyParams(params); err != nil {
		return 0, err
	}
	exp := experiment.New(cfg, g.registry)
	if err := exp.Setup(); err != nil {
		return 0, err
	}
	out, err := exp.Run(ctx)
	if err != nil {
		return 0, err
	}
	return objective(out)
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
