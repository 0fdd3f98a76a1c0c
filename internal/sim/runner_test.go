package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
	"github.com/san-kum/cestsim/internal/propagator"
	"github.com/san-kum/cestsim/internal/seq"
	"github.com/san-kum/cestsim/internal/sim"
)

func waterOnly() *pools.Model {
	m, err := pools.New(pools.Pool{R1: 1 / 1.3, R2: 1 / 75e-3, F: 1}, nil, nil, pools.DefaultScanner())
	Expect(err).NotTo(HaveOccurred())
	return m
}

func tissue() *pools.Model {
	water := pools.Pool{Name: "water", R1: 1 / 1.3, R2: 1 / 75e-3, F: 1}
	amide := pools.Pool{Name: "amide", R1: 1 / 1.3, R2: 10, F: 72e-3 / 111, DW: 3.5, K: 30}
	creatine := pools.Pool{Name: "creatine", R1: 1 / 1.3, R2: 10, F: 20e-3 / 111, DW: 2, K: 1100}
	mt := &pools.MTPool{Pool: pools.Pool{Name: "mt", R1: 1, R2: 1e5, F: 0.05, DW: -2, K: 23}, Lineshape: pools.LineshapeLorentzian}
	m, err := pools.New(water, []pools.Pool{amide, creatine}, mt, pools.DefaultScanner())
	Expect(err).NotTo(HaveOccurred())
	return m
}

// ninety is an on-resonance hard pulse of 250 Hz for 1 ms.
func ninety() *seq.RFPulse {
	s := make([]complex128, 10)
	for i := range s {
		s[i] = 250
	}
	return &seq.RFPulse{Samples: s, Length: 1e-3}
}

// failing delegates to a real strategy except where when matches.
type failing struct {
	propagator.Propagator
	when func(a mat.Matrix, dt float64) bool
}

func (f failing) Expm(dst *mat.Dense, a mat.Matrix, dt float64) error {
	if f.when(a, dt) {
		return dynamo.ErrNumericalInstability
	}
	return f.Propagator.Expm(dst, a, dt)
}

func run(m *pools.Model, opts pools.Options, s *seq.Sequence) (*sim.Result, error) {
	return sim.New(m, propagator.NewEigen(), opts, 1).Run(context.Background(), s)
}

var _ = Describe("Runner", func() {
	var opts pools.Options

	BeforeEach(func() {
		opts = pools.DefaultOptions()
		opts.ResetInitMag = false
		opts.Parallel = false
	})

	Describe("spoiling", func() {
		It("zeroes transverse magnetization and leaves Mz bit-for-bit", func() {
			m := waterOnly()
			s := &seq.Sequence{}
			s.Add(ninety(), seq.Readout{}, seq.Spoiler{}, seq.Readout{})

			res, err := run(m, opts, s)
			Expect(err).NotTo(HaveOccurred())

			before, after := res.Buffer.Column(0), res.Buffer.Column(1)
			Expect(math.Abs(before[m.Y(0)])).To(BeNumerically(">", 0.5))
			Expect(after[m.X(0)]).To(Equal(0.0))
			Expect(after[m.Y(0)]).To(Equal(0.0))
			Expect(after[m.Z(0)]).To(Equal(before[m.Z(0)]))
		})
	})

	Describe("readout", func() {
		It("restores the initial magnetization when reset is enabled", func() {
			m := waterOnly()
			opts.ResetInitMag = true
			s := &seq.Sequence{}
			s.Add(ninety(), seq.Readout{}, seq.Readout{})

			r := sim.New(m, propagator.NewPade(), opts, 0.5)
			res, err := r.Run(context.Background(), s)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Buffer.Column(1)).To(Equal(r.InitialMagnetization()))
			Expect(res.Buffer.Column(0)).NotTo(Equal(r.InitialMagnetization()))
		})

		It("keeps the evolved state when reset is disabled", func() {
			m := waterOnly()
			s := &seq.Sequence{}
			s.Add(ninety(), seq.Readout{}, seq.Readout{})

			res, err := run(m, opts, s)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Buffer.Column(1)).To(Equal(res.Buffer.Column(0)))
		})

		It("notifies observers in column order", func() {
			m := waterOnly()
			s := &seq.Sequence{}
			s.Add(seq.Readout{}, seq.Delay{Length: 0.1}, seq.Readout{}, seq.Readout{})

			var seen []int
			r := sim.New(m, propagator.NewEigen(), opts, 1)
			r.AddObserver(dynamo.ObserverFunc(func(i int, _ dynamo.State) { seen = append(seen, i) }))
			_, err := r.Run(context.Background(), s)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]int{0, 1, 2}))
		})
	})

	Describe("lifecycle", func() {
		It("runs once and ends in Done", func() {
			r := sim.New(waterOnly(), propagator.NewEigen(), opts, 1)
			Expect(r.Status()).To(Equal(sim.Idle))

			s := &seq.Sequence{}
			s.Add(seq.Delay{Length: 1}, seq.Readout{})
			res, err := r.Run(context.Background(), s)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Status()).To(Equal(sim.Done))
			Expect(res.Mode).To(Equal(sim.Sequential))
			Expect(res.Strategy).To(Equal("eigen"))
			Expect(res.Steps).To(Equal(1))

			_, err = r.Run(context.Background(), s)
			Expect(err).To(MatchError(dynamo.ErrRunnerState))
		})

		It("fails before propagating on an unsupported waveform", func() {
			samples := make([]complex128, 20)
			for i := range samples {
				samples[i] = complex(float64(i+1), 0)
			}
			s := &seq.Sequence{}
			s.Add(seq.Readout{}, &seq.RFPulse{Samples: samples, Length: 0.01}, seq.Readout{})

			called := false
			r := sim.New(waterOnly(), propagator.NewEigen(), opts, 1)
			r.AddObserver(dynamo.ObserverFunc(func(int, dynamo.State) { called = true }))
			_, err := r.Run(context.Background(), s)
			Expect(err).To(MatchError(dynamo.ErrUnsupportedWaveform))
			Expect(r.Status()).To(Equal(sim.Failed))
			Expect(called).To(BeFalse())
		})

		It("stops between blocks when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			s := &seq.Sequence{}
			s.Add(seq.Delay{Length: 1}, seq.Readout{})

			_, err := sim.New(waterOnly(), propagator.NewEigen(), opts, 1).Run(ctx, s)
			Expect(err).To(MatchError(context.Canceled))
		})

		It("reports the failing block of a numerical blow-up", func() {
			s := &seq.Sequence{}
			s.Add(seq.Delay{Length: 1}, seq.Delay{Length: 0.25}, seq.Readout{})

			p := failing{Propagator: propagator.NewEigen(), when: func(_ mat.Matrix, dt float64) bool { return dt == 0.25 }}
			r := sim.New(waterOnly(), p, opts, 1)
			_, err := r.Run(context.Background(), s)
			Expect(err).To(MatchError(dynamo.ErrNumericalInstability))

			var se *dynamo.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Event).To(Equal(1))
			Expect(se.SubStep).To(Equal(0))
			Expect(se.Offset).To(Equal(-1))
			Expect(r.Status()).To(Equal(sim.Failed))
		})
	})

	Describe("parallel mode", func() {
		var protocol seq.Protocol

		BeforeEach(func() {
			protocol = seq.Protocol{
				OffsetsPPM:      []float64{-3.5, 0.5, 3.5},
				RunM0Scan:       true,
				M0Recovery:      3,
				Recovery:        0.5,
				B1:              1.5,
				PulseDuration:   0.05,
				InterPulseDelay: 0.01,
				NumPulses:       2,
				Shape:           "gauss",
				SamplesPerPulse: 400,
				Spoiling:        true,
			}
			opts.ResetInitMag = true
			opts.MaxPulseSamples = 100
		})

		It("matches one sequential run per offset", func() {
			m := tissue()
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())

			seqRes, err := run(m, opts, s)
			Expect(err).NotTo(HaveOccurred())

			opts.Parallel = true
			var seen []int
			r := sim.New(m, propagator.NewEigen(), opts, 1)
			r.AddObserver(dynamo.ObserverFunc(func(i int, _ dynamo.State) { seen = append(seen, i) }))
			parRes, err := r.Run(context.Background(), s)
			Expect(err).NotTo(HaveOccurred())
			Expect(parRes.Mode).To(Equal(sim.Parallel))
			Expect(seen).To(Equal([]int{0, 1, 2, 3}))

			Expect(parRes.Buffer.Len()).To(Equal(4))
			for j := 0; j < 4; j++ {
				want, got := seqRes.Buffer.Column(j), parRes.Buffer.Column(j)
				Expect(got.MaxAbsDiff(want)).To(BeNumerically("<", 1e-10), "column %d", j)
			}
			Expect(parRes.Steps).To(Equal(seqRes.Steps))
		})

		It("locates a failing offset in the sequence", func() {
			m := tissue()
			protocol.Shape = "block"
			protocol.NumPulses = 1
			protocol.Spoiling = false
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())

			// water off-resonance term of the 0.5 ppm offset
			target := -0.5 * m.Scanner().W0()
			p := failing{Propagator: propagator.NewEigen(), when: func(a mat.Matrix, _ float64) bool {
				return math.Abs(a.At(m.X(0), m.Y(0))-target) < 1e-6
			}}
			opts.Parallel = true
			_, err = sim.New(m, p, opts, 1).Run(context.Background(), s)

			var se *dynamo.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Offset).To(Equal(1))
			Expect(se.Event).To(Equal(2+3+1), "m0 prefix, one offset template, then the pulse")
			Expect(se).To(MatchError(dynamo.ErrNumericalInstability))
		})

		It("requires reset of the initial magnetization", func() {
			m := tissue()
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())

			opts.Parallel = true
			opts.ResetInitMag = false
			_, err = run(m, opts, s)
			Expect(err).To(MatchError(dynamo.ErrBatchingPrecondition))
		})

		It("rejects block counts that do not split across offsets", func() {
			m := tissue()
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())
			s.Add(seq.Delay{Length: 1})

			opts.Parallel = true
			_, err = run(m, opts, s)
			Expect(err).To(MatchError(dynamo.ErrBatchingPrecondition))
		})

		It("rejects offsets whose structure differs from the template", func() {
			m := tissue()
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())
			last := s.Len() - 1
			s.Blocks[last-1], s.Blocks[last] = s.Blocks[last], s.Blocks[last-1]

			opts.Parallel = true
			_, err = run(m, opts, s)
			Expect(err).To(MatchError(dynamo.ErrBatchingPrecondition))
		})

		It("rejects offset metadata that does not match the blocks", func() {
			m := tissue()
			protocol.OffsetsPPM = []float64{-3.5, -1, 1, 3.5}
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())
			s.OffsetsPPM = []float64{-3, 3}

			opts.Parallel = true
			res, err := run(m, opts, s)
			Expect(err).To(MatchError(dynamo.ErrBatchingPrecondition))
			Expect(res).To(BeNil())
		})

		It("rejects an offset that mixes rf frequencies", func() {
			m := tissue()
			s, err := protocol.Build(m.Scanner().B0, m.Scanner().Gamma)
			Expect(err).NotTo(HaveOccurred())
			for i := s.Len() - 1; i >= 0; i-- {
				if rf, ok := s.Blocks[i].(*seq.RFPulse); ok {
					cp := *rf
					cp.FreqOffset += 100
					s.Blocks[i] = &cp
					break
				}
			}

			opts.Parallel = true
			_, err = run(m, opts, s)
			Expect(err).To(MatchError(dynamo.ErrBatchingPrecondition))
		})
	})

	Describe("amide z-spectrum", func() {
		It("shows the CEST dip at +3.5 ppm", func() {
			water := pools.Pool{R1: 1 / 1.3, R2: 1 / 75e-3, F: 1}
			amide := pools.Pool{R1: 1 / 1.3, R2: 1 / 100e-3, F: 72e-3 / 111, DW: 3.5, K: 30}
			m, err := pools.New(water, []pools.Pool{amide}, nil, pools.DefaultScanner())
			Expect(err).NotTo(HaveOccurred())

			s, err := seq.DefaultProtocol().Build(3, pools.DefaultGamma)
			Expect(err).NotTo(HaveOccurred())

			opts.ResetInitMag = true
			opts.Parallel = true
			res, err := run(m, opts, s)
			Expect(err).NotTo(HaveOccurred())

			mz := res.Buffer.Row(m.Z(0))
			m0 := mz[0]
			z := make([]float64, len(mz)-1)
			for i := range z {
				z[i] = mz[i+1] / m0
			}
			for i, v := range z {
				Expect(v).To(BeNumerically("<", 1), "offset %g", s.OffsetsPPM[i])
			}

			// offsets ±3.62 ppm sit at indices 7 and 22 of the 30 point sweep
			Expect(s.OffsetsPPM[22]).To(BeNumerically("~", 3.62, 0.01))
			Expect(s.OffsetsPPM[7]).To(BeNumerically("~", -3.62, 0.01))
			Expect(z[7] - z[22]).To(BeNumerically(">", 0.001))
		})
	})
})
