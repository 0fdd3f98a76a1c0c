package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/bmc"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/propagator"
	"github.com/san-kum/cestsim/internal/seq"
)

// batchPlan describes how a sequence splits into a shared M0 prefix and one
// block template per offset.
type batchPlan struct {
	prefix  int
	period  int
	offsets int
	m0cols  int

	// readoutIdx[j] is the readout ordinal of template block j, or -1.
	readoutIdx []int
	readouts   int
	// rfIdx[j] is the RF ordinal of template block j, or -1.
	rfIdx []int
	freq  [][]float64
	phase [][]float64
}

// planBatch checks that every offset replays the template of the first one
// with only its RF frequency and phase offsets changed. Each offset holds
// exactly one readout and a single RF frequency.
func planBatch(s *seq.Sequence, wfs []seq.Waveform) (*batchPlan, error) {
	n := len(s.OffsetsPPM)
	if n == 0 {
		return nil, fmt.Errorf("%w: sequence declares no offsets", dynamo.ErrBatchingPrecondition)
	}
	prefix, err := s.M0Prefix()
	if err != nil {
		return nil, err
	}
	rest := s.Len() - prefix
	if rest <= 0 || rest%n != 0 {
		return nil, fmt.Errorf("%w: %d blocks after the m0 scan do not split into %d offsets",
			dynamo.ErrBatchingPrecondition, rest, n)
	}

	p := &batchPlan{
		prefix:     prefix,
		period:     rest / n,
		offsets:    n,
		readoutIdx: make([]int, rest/n),
		rfIdx:      make([]int, rest/n),
	}
	for i := 0; i < prefix; i++ {
		if s.Blocks[i].Kind() == seq.KindReadout {
			p.m0cols++
		}
	}

	rfs := 0
	for j := 0; j < p.period; j++ {
		p.readoutIdx[j], p.rfIdx[j] = -1, -1
		switch s.Blocks[prefix+j].Kind() {
		case seq.KindReadout:
			p.readoutIdx[j] = p.readouts
			p.readouts++
		case seq.KindRF:
			p.rfIdx[j] = rfs
			rfs++
		}
	}
	if p.readouts != 1 {
		return nil, fmt.Errorf("%w: %d readouts per offset, sequence declares %d offsets for %d readouts",
			dynamo.ErrBatchingPrecondition, p.readouts, n, p.readouts*n)
	}

	p.freq = make([][]float64, n)
	p.phase = make([][]float64, n)
	for o := 0; o < n; o++ {
		p.freq[o] = make([]float64, rfs)
		p.phase[o] = make([]float64, rfs)
		for j := 0; j < p.period; j++ {
			ref := prefix + j
			at := prefix + o*p.period + j
			if err := sameStructure(s.Blocks[ref], s.Blocks[at], wfs[ref], wfs[at]); err != nil {
				return nil, fmt.Errorf("%w: offset %d block %d: %v", dynamo.ErrBatchingPrecondition, o, at+1, err)
			}
			if rf, ok := s.Blocks[at].(*seq.RFPulse); ok {
				p.freq[o][p.rfIdx[j]] = rf.FreqOffset
				p.phase[o][p.rfIdx[j]] = rf.PhaseOffset
			}
		}
		for _, f := range p.freq[o] {
			if f != p.freq[o][0] {
				return nil, fmt.Errorf("%w: offset %d mixes rf frequencies %g and %g Hz",
					dynamo.ErrBatchingPrecondition, o, p.freq[o][0], f)
			}
		}
	}
	return p, nil
}

func sameStructure(ref, b seq.Block, wref, wb seq.Waveform) error {
	if ref.Kind() != b.Kind() {
		return fmt.Errorf("found %s where template has %s", b.Kind(), ref.Kind())
	}
	switch ref.Kind() {
	case seq.KindDelay:
		if ref.Duration() != b.Duration() {
			return fmt.Errorf("delay %gs differs from template %gs", b.Duration(), ref.Duration())
		}
	case seq.KindRF:
		if !wref.Equal(wb) {
			return errors.New("rf waveform differs from template")
		}
	}
	return nil
}

// runParallel replays the offset template for all offsets at once. Each
// offset owns a builder clone and a state; only the gather into the buffer
// is shared.
func (r *Runner) runParallel(ctx context.Context, s *seq.Sequence, wfs []seq.Waveform) (*ResultBuffer, int, error) {
	if !r.opts.ResetInitMag {
		return nil, 0, fmt.Errorf("%w: parallel mode requires reset_init_mag", dynamo.ErrBatchingPrecondition)
	}
	plan, err := planBatch(s, wfs)
	if err != nil {
		return nil, 0, err
	}
	logrus.Debugf("batching %d offsets of %d blocks after a %d block m0 prefix", plan.offsets, plan.period, plan.prefix)

	buf := NewResultBuffer(r.model.Dim(), s.Readouts())
	steps := 0

	if plan.prefix > 0 {
		tr := r.newTrajectory()
		for i := 0; i < plan.prefix; i++ {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			logrus.Debugf("simulating m0 block %d / %d (%s)", i+1, plan.prefix, s.Blocks[i].Kind())
			if err := r.apply(tr, i, s.Blocks[i], wfs[i], buf); err != nil {
				return nil, 0, err
			}
		}
		steps += tr.stepper.Steps()
	}

	n := plan.offsets
	base := bmc.New(r.model)
	builders := make([]*bmc.Builder, n)
	as := make([]*mat.Dense, n)
	cs := make([]*mat.VecDense, n)
	ms := make([]dynamo.State, n)
	accum := make([]float64, n)
	for o := range builders {
		builders[o] = base.Clone()
		as[o], cs[o] = builders[o].A(), builders[o].C()
		ms[o] = r.init.Clone()
	}
	batch := propagator.NewBatch(r.prop, n, r.model.Dim())

	step := func(j, sub int, dt float64) error {
		if dt <= 0 {
			return nil
		}
		if err := batch.Step(as, cs, ms, dt); err != nil {
			return plan.locate(j, sub, err)
		}
		return nil
	}
	relax := func() {
		for _, b := range builders {
			b.Update(0, 0, 0)
		}
	}

	for j := 0; j < plan.period; j++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		event := plan.prefix + j
		logrus.Debugf("simulating template block %d / %d (%s) for %d offsets", j+1, plan.period, s.Blocks[event].Kind(), n)

		switch blk := s.Blocks[event].(type) {
		case *seq.RFPulse:
			w, rf := wfs[event], plan.rfIdx[j]
			for k := range w.Amp {
				for o, b := range builders {
					b.Update(w.Amp[k], w.Phase[k]+plan.phase[o][rf]-accum[o], plan.freq[o][rf])
				}
				if err := step(j, k, w.Dt); err != nil {
					return nil, 0, err
				}
			}
			relax()
			if err := step(j, len(w.Amp), w.Tail); err != nil {
				return nil, 0, err
			}
			for o := range accum {
				accum[o] += seq.PhaseDrift(plan.freq[o][rf], w.Active())
			}
		case seq.Delay:
			relax()
			if err := step(j, 0, blk.Length); err != nil {
				return nil, 0, err
			}
		case seq.Spoiler:
			for _, m := range ms {
				for i := 0; i < r.model.Transverse(); i++ {
					m[i] = 0
				}
			}
		case seq.Readout:
			for o, m := range ms {
				buf.Set(plan.column(o, plan.readoutIdx[j]), m)
				accum[o] = 0
				copy(m, r.init)
			}
		}
	}

	for c := plan.m0cols; c < buf.Len(); c++ {
		r.notify(c, buf.Column(c))
	}
	return buf, steps + batch.Steps(), nil
}

func (p *batchPlan) column(offset, readout int) int {
	return p.m0cols + offset*p.readouts + readout
}

// locate maps a failing batch index back to its position in the sequence.
func (p *batchPlan) locate(j, sub int, err error) error {
	var be *propagator.BatchError
	if errors.As(err, &be) {
		return &dynamo.SimulationError{
			Event:   p.prefix + be.Index*p.period + j,
			SubStep: sub,
			Offset:  be.Index,
			Wrapped: be.Err,
		}
	}
	return &dynamo.SimulationError{Event: p.prefix + j, SubStep: sub, Offset: 0, Wrapped: err}
}
