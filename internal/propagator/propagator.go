// Package propagator advances magnetization through one step of a frozen
// linear system dM/dt = A·M + C using the closed form
//
//	M(t) = exp(A·t)·(M0 + A⁻¹C) − A⁻¹C
//
// The matrix exponential is delegated to a Propagator strategy; Eigen and
// Pade satisfy the same contract and may be swapped per run.
package propagator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// Propagator computes dst = exp(a·dt). dst is resized when empty.
type Propagator interface {
	Name() string
	Expm(dst *mat.Dense, a mat.Matrix, dt float64) error
}

// Stepper holds the scratch space of one trajectory. It is not safe for
// concurrent use; a batch keeps one Stepper per trajectory.
type Stepper struct {
	p   Propagator
	dim int

	e   *mat.Dense
	ss  *mat.VecDense
	tmp *mat.VecDense
	out *mat.VecDense

	steps int
}

func NewStepper(p Propagator, dim int) *Stepper {
	return &Stepper{
		p:   p,
		dim: dim,
		e:   mat.NewDense(dim, dim, nil),
		ss:  mat.NewVecDense(dim, nil),
		tmp: mat.NewVecDense(dim, nil),
		out: mat.NewVecDense(dim, nil),
	}
}

func (s *Stepper) Propagator() Propagator { return s.p }

// Steps counts successful Step calls.
func (s *Stepper) Steps() int { return s.steps }

// Step overwrites m with its value after dt seconds under (a, c).
// On error m is left untouched.
func (s *Stepper) Step(a *mat.Dense, c *mat.VecDense, m dynamo.State, dt float64) error {
	if r, cc := a.Dims(); r != s.dim || cc != s.dim || c.Len() != s.dim || len(m) != s.dim {
		return fmt.Errorf("%w: stepper dim %d, A %dx%d, C %d, M %d",
			dynamo.ErrDimensionMismatch, s.dim, r, cc, c.Len(), len(m))
	}

	if err := s.p.Expm(s.e, a, dt); err != nil {
		return err
	}
	if err := steadyState(s.ss, a, c); err != nil {
		return err
	}

	s.tmp.AddVec(mat.NewVecDense(s.dim, m), s.ss)
	s.out.MulVec(s.e, s.tmp)
	s.out.SubVec(s.out, s.ss)

	res := dynamo.State(s.out.RawVector().Data)
	if !res.IsValid() {
		return fmt.Errorf("%w: %s produced non-finite magnetization", dynamo.ErrNumericalInstability, s.p.Name())
	}
	copy(m, res)
	s.steps++
	return nil
}

// steadyState writes A⁺C into dst using an SVD pseudo-inverse so that
// relaxation-free systems with a singular A still propagate.
func steadyState(dst *mat.VecDense, a *mat.Dense, c *mat.VecDense) error {
	if mat.Norm(c, math.Inf(1)) == 0 {
		dst.Zero()
		return nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("%w: svd of system matrix failed", dynamo.ErrNumericalInstability)
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	n := len(sv)
	tol := 0.0
	if n > 0 {
		tol = sv[0] * float64(n) * 1e-15
	}

	var utc mat.VecDense
	utc.MulVec(u.T(), c)
	for i := 0; i < n; i++ {
		if sv[i] > tol {
			utc.SetVec(i, utc.AtVec(i)/sv[i])
		} else {
			utc.SetVec(i, 0)
		}
	}
	dst.MulVec(&v, &utc)
	return nil
}
