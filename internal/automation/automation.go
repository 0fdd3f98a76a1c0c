package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/experiment"
)

// Scenario is a scripted list of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep selects a preset or config file and overrides parameters by
// name (see config.SetParam).
type ScenarioStep struct {
	Preset     string             `yaml:"preset"`
	Config     string             `yaml:"config"`
	Propagator string             `yaml:"propagator"`
	Parallel   bool               `yaml:"par_calc"`
	Params     map[string]float64 `yaml:"params"`
	SaveAs     string             `yaml:"save_as"`
}

// StepResult pairs a step's resolved configuration with its outcome.
type StepResult struct {
	Name    string
	Config  *config.Config
	Outcome *experiment.Outcome
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Resolve builds the configuration a step runs with.
func (s ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.Propagator != "" {
		cfg.Options.Propagator = s.Propagator
	}
	if s.Parallel {
		cfg.Options.Parallel = true
	}
	if err := cfg.ApplyParams(s.Params); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s ScenarioStep) name(i int) string {
	switch {
	case s.SaveAs != "":
		return s.SaveAs
	case s.Preset != "":
		return s.Preset
	}
	return fmt.Sprintf("step_%d", i+1)
}

// RunScenario executes the steps in order and stops at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.name(i)
		logrus.Infof("running step %d/%d: %s", i+1, len(scenario.Steps), name)

		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp := experiment.New(cfg, registry)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		out, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Name: name, Config: cfg, Outcome: out})
	}

	return results, nil
}

// ParameterSweep varies one named parameter over a linear range.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	// TargetPPM is the offset whose asymmetry is reported.
	TargetPPM float64
}

type SweepResult struct {
	ParamValue float64
	MinZ       float64
	ZTarget    float64 // interpolated Z at TargetPPM
	Asym       float64
	HasAsym    bool
}

func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step")
	}
	results := make([]SweepResult, 0, sweep.NumSteps)

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		cfg := sweep.Base.Clone()
		if err := cfg.SetParam(sweep.ParamName, paramVal); err != nil {
			return nil, err
		}

		out, err := runOnce(ctx, cfg, registry)
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.ParamName, paramVal, err)
		}

		asym, ok := out.Spectrum.MTRAsym().Lookup(sweep.TargetPPM)
		results = append(results, SweepResult{
			ParamValue: paramVal,
			MinZ:       out.Spectrum.Summary().MinZ,
			ZTarget:    out.Spectrum.At(sweep.TargetPPM),
			Asym:       asym,
			HasAsym:    ok,
		})

		logrus.Debugf("sweep %d/%d: %s=%.4f", i+1, sweep.NumSteps, sweep.ParamName, paramVal)
	}

	return results, nil
}

func runOnce(ctx context.Context, cfg *config.Config, registry *experiment.Registry) (*experiment.Outcome, error) {
	exp := experiment.New(cfg, registry)
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}

// MonteCarloConfig draws field imperfections uniformly around the base
// configuration: B0 offset in ppm within ±B0Spread and relative B1 within
// 1 ± B1Spread.
type MonteCarloConfig struct {
	Base      *config.Config
	B0Spread  float64
	B1Spread  float64
	NumTrials int
	TargetPPM float64
	Seed      int64
}

type MonteCarloResult struct {
	TrialID int
	DB0     float64
	RelB1   float64
	Asym    float64
	Stable  bool
}

// RunMonteCarlo executes trials with perturbed field maps. A trial that fails
// numerically is recorded as unstable rather than aborting the batch.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry) ([]MonteCarloResult, error) {
	results := make([]MonteCarloResult, 0, cfg.NumTrials)

	rng := rand.New(rand.NewSource(cfg.Seed))
	if cfg.Seed == 0 {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for trial := 0; trial < cfg.NumTrials; trial++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		c := cfg.Base.Clone()
		c.Scanner.B0Inhomogeneity = cfg.Base.Scanner.B0Inhomogeneity + (rng.Float64()-0.5)*2*cfg.B0Spread
		c.Scanner.RelB1 = cfg.Base.Scanner.RelB1 * (1 + (rng.Float64()-0.5)*2*cfg.B1Spread)

		res := MonteCarloResult{TrialID: trial, DB0: c.Scanner.B0Inhomogeneity, RelB1: c.Scanner.RelB1}
		out, err := runOnce(ctx, c, registry)
		switch {
		case err == nil:
			res.Asym, res.Stable = out.Spectrum.MTRAsym().Lookup(cfg.TargetPPM)
		case ctx.Err() != nil:
			return results, ctx.Err()
		default:
			logrus.Warnf("trial %d failed: %v", trial, err)
		}
		results = append(results, res)

		if (trial+1)%10 == 0 {
			logrus.Infof("monte carlo: %d/%d trials complete", trial+1, cfg.NumTrials)
		}
	}

	return results, nil
}

// MonteCarloStats summarises the asymmetry over the stable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount, unstableCount int, mean, std float64) {
	vals := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Stable {
			stableCount++
			vals = append(vals, r.Asym)
		} else {
			unstableCount++
		}
	}
	if len(vals) > 0 {
		mean, std = stat.MeanStdDev(vals, nil)
	}
	return
}
