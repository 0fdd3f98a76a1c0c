// Package bmc builds the Bloch-McConnell system dM/dt = A·M + C for a pool
// model and rewrites its RF- and offset-dependent entries in place.
package bmc

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/lineshape"
	"github.com/san-kum/cestsim/internal/pools"
)

// Builder owns A and C for one magnetization trajectory. A parallel run
// holds one Builder per offset.
type Builder struct {
	model *pools.Model
	ls    lineshape.Evaluator

	a *mat.Dense
	c *mat.VecDense

	w0    float64
	dw0   float64
	relB1 float64
}

// New builds the static relaxation/exchange part of A and the equilibrium
// vector C. Dynamic entries start at zero RF and zero offset.
func New(model *pools.Model) *Builder {
	dim := model.Dim()
	sc := model.Scanner()
	b := &Builder{
		model: model,
		ls:    lineshape.None{},
		a:     mat.NewDense(dim, dim, nil),
		c:     mat.NewVecDense(dim, nil),
		w0:    sc.W0(),
		dw0:   sc.DW0(),
		relB1: sc.RelB1,
	}
	if mt, ok := model.MT(); ok {
		b.ls = lineshape.New(mt, sc)
	}
	b.initA()
	b.initC()
	b.Update(0, 0, 0)
	return b
}

func (b *Builder) initA() {
	m := b.model
	water := m.Water()

	k1w := water.R1
	k2w := water.R2

	if mt, ok := m.MT(); ok {
		kca := mt.K
		kac := mt.K * mt.F
		b.a.Set(m.Z(0), m.ZMT(), kca)
		b.a.Set(m.ZMT(), m.Z(0), kac)
		b.a.Set(m.ZMT(), m.ZMT(), -(mt.R1 + mt.K))
		k1w += kac
	}

	for p := 1; p < m.NumPools(); p++ {
		pool := m.Pool(p)
		kiw := pool.K
		kwi := pool.K * pool.F
		k1w += kwi
		k2w += kwi

		b.a.Set(m.X(0), m.X(p), kiw)
		b.a.Set(m.X(p), m.X(0), kwi)
		b.a.Set(m.X(p), m.X(p), -(kiw + pool.R2))

		b.a.Set(m.Y(0), m.Y(p), kiw)
		b.a.Set(m.Y(p), m.Y(0), kwi)
		b.a.Set(m.Y(p), m.Y(p), -(kiw + pool.R2))

		b.a.Set(m.Z(0), m.Z(p), kiw)
		b.a.Set(m.Z(p), m.Z(0), kwi)
		b.a.Set(m.Z(p), m.Z(p), -(kiw + pool.R1))
	}

	b.a.Set(m.X(0), m.X(0), -k2w)
	b.a.Set(m.Y(0), m.Y(0), -k2w)
	b.a.Set(m.Z(0), m.Z(0), -k1w)
}

func (b *Builder) initC() {
	m := b.model
	for p := 0; p < m.NumPools(); p++ {
		pool := m.Pool(p)
		b.c.SetVec(m.Z(p), pool.F*pool.R1)
	}
	if mt, ok := m.MT(); ok {
		b.c.SetVec(m.ZMT(), mt.F*mt.R1)
	}
}

// Update rewrites the dynamic entries of A for one propagation step.
// amp is the RF amplitude [Hz] before relative B1 scaling, phase is in rad
// and freq is the RF frequency offset [Hz].
func (b *Builder) Update(amp, phase, freq float64) {
	m := b.model
	w1 := amp * 2 * math.Pi * b.relB1
	w1sin := w1 * math.Sin(phase)
	w1cos := w1 * math.Cos(phase)
	wrf := freq * 2 * math.Pi

	for p := 0; p < m.NumPools(); p++ {
		x, y, z := m.X(p), m.Y(p), m.Z(p)

		dw := m.Pool(p).DW*b.w0 - wrf - b.dw0
		b.a.Set(x, y, dw)
		b.a.Set(y, x, -dw)

		b.a.Set(x, z, -w1sin)
		b.a.Set(z, x, w1sin)
		b.a.Set(y, z, w1cos)
		b.a.Set(z, y, -w1cos)
	}

	if mt, ok := m.MT(); ok {
		zmt := m.ZMT()
		g := b.ls.Value(wrf + b.dw0)
		b.a.Set(zmt, zmt, -(mt.R1 + mt.K + w1*w1*g))
	}
}

// A returns the live system matrix. Callers must not keep it across Update.
func (b *Builder) A() *mat.Dense { return b.a }

// C returns the equilibrium vector.
func (b *Builder) C() *mat.VecDense { return b.c }

func (b *Builder) Model() *pools.Model { return b.model }

// Clone returns an independent Builder sharing only the immutable model.
func (b *Builder) Clone() *Builder {
	cp := *b
	cp.a = mat.DenseCopyOf(b.a)
	cp.c = mat.VecDenseCopyOf(b.c)
	return &cp
}
