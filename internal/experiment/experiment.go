package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/config"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
	"github.com/san-kum/cestsim/internal/seq"
	"github.com/san-kum/cestsim/internal/sim"
)

// FallbackPropagator is the strategy used when a run opts into fallback
// after a numerical failure.
const FallbackPropagator = "pade"

// Experiment wires a configuration into a model, a generated sequence and a
// runner.
type Experiment struct {
	cfg      *config.Config
	registry *Registry

	model    *pools.Model
	sequence *seq.Sequence
	runner   *sim.Runner
}

// Outcome is a finished run together with its derived spectrum.
type Outcome struct {
	Result   *sim.Result
	Spectrum *analysis.Spectrum
}

func New(cfg *config.Config, registry *Registry) *Experiment {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Experiment{cfg: cfg, registry: registry}
}

// Setup builds the model and sequence and prepares a runner with the
// configured strategy.
func (e *Experiment) Setup() error {
	model, err := e.cfg.ToModel()
	if err != nil {
		return err
	}
	sequence, err := e.cfg.Sequence()
	if err != nil {
		return err
	}
	e.model, e.sequence = model, sequence
	logrus.Infof("sequence: %d blocks, %d readouts, %.2fs", sequence.Len(), sequence.Readouts(), sequence.TotalDuration())
	return e.newRunner(e.cfg.Options.Propagator)
}

func (e *Experiment) newRunner(name string) error {
	if name == "" {
		name = config.DefaultPropagator
	}
	p, err := e.registry.GetPropagator(name)
	if err != nil {
		return fmt.Errorf("%w: %v", dynamo.ErrConfiguration, err)
	}
	e.runner = sim.New(e.model, p, e.cfg.PoolOptions(), e.cfg.Scale)
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*Outcome, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	res, err := e.runner.Run(ctx, e.sequence)
	if err != nil {
		return nil, err
	}
	return e.outcome(res)
}

// RunWithFallback retries once with the Padé strategy when the configured
// strategy reports numerical instability. Observers are carried over.
func (e *Experiment) RunWithFallback(ctx context.Context, observers ...dynamo.Observer) (*Outcome, error) {
	if e.runner == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	for _, o := range observers {
		e.runner.AddObserver(o)
	}
	out, err := e.Run(ctx)
	if err == nil || !errors.Is(err, dynamo.ErrNumericalInstability) {
		return out, err
	}
	if e.cfg.Options.Propagator == FallbackPropagator {
		return nil, err
	}

	logrus.Warnf("%s propagation failed (%v), retrying with %s", e.cfg.Options.Propagator, err, FallbackPropagator)
	if err := e.newRunner(FallbackPropagator); err != nil {
		return nil, err
	}
	for _, o := range observers {
		e.runner.AddObserver(o)
	}
	return e.Run(ctx)
}

func (e *Experiment) outcome(res *sim.Result) (*Outcome, error) {
	spec, err := analysis.ZSpectrum(res.Buffer, e.model, e.sequence)
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: res, Spectrum: spec}, nil
}

func (e *Experiment) Config() *config.Config  { return e.cfg }
func (e *Experiment) Model() *pools.Model     { return e.model }
func (e *Experiment) Sequence() *seq.Sequence { return e.sequence }
func (e *Experiment) GetRunner() *sim.Runner  { return e.runner }
