package propagator

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// Eigen exponentiates A·dt through its eigendecomposition V·diag(λ)·V⁻¹.
// It is fast for the small, non-defective matrices of realistic pool counts
// and fails loudly on defective ones.
type Eigen struct{}

func NewEigen() *Eigen { return &Eigen{} }

func (*Eigen) Name() string { return "eigen" }

func (*Eigen) Expm(dst *mat.Dense, a mat.Matrix, dt float64) error {
	n, _ := a.Dims()
	var at mat.Dense
	at.Scale(dt, a)

	var eig mat.Eigen
	if ok := eig.Factorize(&at, mat.EigenRight); !ok {
		return fmt.Errorf("%w: eigendecomposition did not converge", dynamo.ErrNumericalInstability)
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	v := make([][]complex128, n)
	for i := range v {
		v[i] = make([]complex128, n)
		for j := range v[i] {
			v[i][j] = vecs.At(i, j)
		}
	}
	inv, err := cinverse(v)
	if err != nil {
		return fmt.Errorf("%w: eigenvector matrix is singular (defective system)", dynamo.ErrNumericalInstability)
	}

	ev := make([]complex128, n)
	for k, l := range vals {
		ev[k] = cmplx.Exp(l)
	}

	if dst.IsEmpty() {
		dst.ReuseAs(n, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += v[i][k] * ev[k] * inv[k][j]
			}
			re := real(sum)
			if math.IsNaN(re) || math.IsInf(re, 0) {
				return fmt.Errorf("%w: non-finite matrix exponential", dynamo.ErrNumericalInstability)
			}
			dst.Set(i, j, re)
		}
	}
	return nil
}
