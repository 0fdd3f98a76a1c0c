package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/cestsim/internal/bmc"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
	"github.com/san-kum/cestsim/internal/propagator"
	"github.com/san-kum/cestsim/internal/seq"
)

// Runner walks a sequence of event blocks through the Bloch-McConnell
// system of one pool model. A Runner runs once: it moves from Idle to a
// running status and ends in Done or Failed.
type Runner struct {
	model *pools.Model
	prop  propagator.Propagator
	opts  pools.Options
	init  dynamo.State

	observers []dynamo.Observer
	status    atomic.Int32
}

// New returns an idle runner whose initial magnetization is the pool
// fractions multiplied by scale.
func New(model *pools.Model, p propagator.Propagator, opts pools.Options, scale float64) *Runner {
	if opts.MaxPulseSamples <= 0 {
		opts.MaxPulseSamples = pools.DefaultMaxPulseSamples
	}
	return &Runner{
		model: model,
		prop:  p,
		opts:  opts,
		init:  model.InitialMagnetization(scale),
	}
}

func (r *Runner) AddObserver(o dynamo.Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Status() Status { return Status(r.status.Load()) }

func (r *Runner) Model() *pools.Model { return r.model }

// InitialMagnetization returns a copy of the state every reset returns to.
func (r *Runner) InitialMagnetization() dynamo.State { return r.init.Clone() }

// Run simulates s and returns one column per readout. Configuration and
// batching errors are reported before any propagation happens; the caller
// may cancel ctx between event blocks.
func (r *Runner) Run(ctx context.Context, s *seq.Sequence) (*Result, error) {
	mode, running := Sequential, RunningSequential
	if r.opts.Parallel {
		mode, running = Parallel, RunningParallel
	}
	if !r.status.CompareAndSwap(int32(Idle), int32(running)) {
		return nil, fmt.Errorf("%w: status is %s", dynamo.ErrRunnerState, r.Status())
	}

	res, err := r.run(ctx, s, mode)
	if err != nil {
		r.status.Store(int32(Failed))
		return nil, err
	}
	r.status.Store(int32(Done))
	return res, nil
}

func (r *Runner) run(ctx context.Context, s *seq.Sequence, mode Mode) (*Result, error) {
	wfs, err := r.prepare(s)
	if err != nil {
		return nil, err
	}

	logrus.Infof("simulating %d blocks (%d readouts), %s mode, %s propagator, dim %d",
		s.Len(), s.Readouts(), mode, r.prop.Name(), r.model.Dim())
	start := time.Now()

	var (
		buf   *ResultBuffer
		steps int
	)
	if mode == Parallel {
		buf, steps, err = r.runParallel(ctx, s, wfs)
	} else {
		buf, steps, err = r.runSequential(ctx, s, wfs)
	}
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	logrus.Infof("simulation finished: %d steps in %s", steps, elapsed)
	return &Result{
		Buffer:   buf,
		Mode:     mode,
		Strategy: r.prop.Name(),
		Steps:    steps,
		Elapsed:  elapsed,
	}, nil
}

// prepare discretises every RF block up front so that waveform errors are
// fatal before propagation begins.
func (r *Runner) prepare(s *seq.Sequence) ([]seq.Waveform, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil sequence", dynamo.ErrConfiguration)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	wfs := make([]seq.Waveform, len(s.Blocks))
	for i, b := range s.Blocks {
		switch blk := b.(type) {
		case *seq.RFPulse:
			w, err := seq.Prepare(blk, r.opts.MaxPulseSamples)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", i+1, err)
			}
			if w.Stride > 1 && w.Steps() > 1 {
				logrus.Debugf("block %d: rf subsampled with stride %d to %d steps", i+1, w.Stride, w.Steps())
			}
			wfs[i] = w
		case seq.Delay, seq.Spoiler, seq.Readout:
		default:
			return nil, fmt.Errorf("%w: block %d has unsupported type %T", dynamo.ErrConfiguration, i+1, b)
		}
	}
	return wfs, nil
}

func (r *Runner) runSequential(ctx context.Context, s *seq.Sequence, wfs []seq.Waveform) (*ResultBuffer, int, error) {
	tr := r.newTrajectory()
	buf := NewResultBuffer(r.model.Dim(), s.Readouts())

	for i, b := range s.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		logrus.Debugf("simulating block %d / %d (%s)", i+1, s.Len(), b.Kind())
		if err := r.apply(tr, i, b, wfs[i], buf); err != nil {
			return nil, 0, err
		}
	}
	return buf, tr.stepper.Steps(), nil
}

// apply advances a single trajectory through block b.
func (r *Runner) apply(tr *trajectory, event int, b seq.Block, w seq.Waveform, buf *ResultBuffer) error {
	switch blk := b.(type) {
	case *seq.RFPulse:
		return tr.pulse(event, w, blk.FreqOffset, blk.PhaseOffset)
	case seq.Delay:
		if err := tr.delay(blk.Length); err != nil {
			return stepError(event, 0, -1, err)
		}
	case seq.Spoiler:
		tr.spoil(r.model.Transverse())
	case seq.Readout:
		j := buf.Append(tr.m)
		r.notify(j, buf.Column(j))
		tr.phase = 0
		if r.opts.ResetInitMag {
			copy(tr.m, r.init)
		}
	}
	return nil
}

func (r *Runner) notify(j int, m dynamo.State) {
	for _, o := range r.observers {
		o.OnReadout(j, m)
	}
}

func (r *Runner) newTrajectory() *trajectory {
	return &trajectory{
		builder: bmc.New(r.model),
		stepper: propagator.NewStepper(r.prop, r.model.Dim()),
		m:       r.init.Clone(),
	}
}

// trajectory is the working state of one offset: its own matrices, scratch
// space and the off-resonance phase accumulated since the last readout.
type trajectory struct {
	builder *bmc.Builder
	stepper *propagator.Stepper
	m       dynamo.State
	phase   float64
}

func (t *trajectory) delay(d float64) error {
	if d <= 0 {
		return nil
	}
	t.builder.Update(0, 0, 0)
	return t.stepper.Step(t.builder.A(), t.builder.C(), t.m, d)
}

func (t *trajectory) pulse(event int, w seq.Waveform, freq, phaseOffset float64) error {
	for k := range w.Amp {
		t.builder.Update(w.Amp[k], w.Phase[k]+phaseOffset-t.phase, freq)
		if err := t.stepper.Step(t.builder.A(), t.builder.C(), t.m, w.Dt); err != nil {
			return stepError(event, k, -1, err)
		}
	}
	if err := t.delay(w.Tail); err != nil {
		return stepError(event, len(w.Amp), -1, err)
	}
	t.phase += seq.PhaseDrift(freq, w.Active())
	return nil
}

// spoil zeroes the leading n transverse components.
func (t *trajectory) spoil(n int) {
	for j := 0; j < n; j++ {
		t.m[j] = 0
	}
}

func stepError(event, sub, offset int, err error) error {
	var be *propagator.BatchError
	if errors.As(err, &be) {
		offset, err = be.Index, be.Err
	}
	return &dynamo.SimulationError{Event: event, SubStep: sub, Offset: offset, Wrapped: err}
}
