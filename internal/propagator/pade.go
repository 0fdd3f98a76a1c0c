package propagator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// DefaultPadeOrder is the diagonal Padé order q.
const DefaultPadeOrder = 6

// Pade evaluates exp(A·dt) by scaling and squaring around a diagonal Padé
// approximant. Preferred for stiff systems such as MT pools with very large R2.
type Pade struct {
	Order int
}

func NewPade() *Pade { return &Pade{Order: DefaultPadeOrder} }

func (*Pade) Name() string { return "pade" }

func (p *Pade) Expm(dst *mat.Dense, a mat.Matrix, dt float64) error {
	q := p.Order
	if q < 1 {
		q = DefaultPadeOrder
	}
	n, _ := a.Dims()

	var at mat.Dense
	at.Scale(dt, a)

	_, exp := math.Frexp(mat.Norm(&at, math.Inf(1)))
	j := exp
	if j < 0 {
		j = 0
	}
	at.Scale(math.Ldexp(1, -j), &at)

	ident := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		ident.SetDiag(i, 1)
	}

	x := mat.DenseCopyOf(&at)
	c := 0.5

	var cx mat.Dense
	cx.Scale(c, &at)

	num := mat.NewDense(n, n, nil)
	den := mat.NewDense(n, n, nil)
	num.Add(ident, &cx)
	den.Sub(ident, &cx)

	var tmp mat.Dense
	positive := true
	for k := 2; k <= q; k++ {
		c = c * float64(q-k+1) / float64(k*(2*q-k+1))
		tmp.Mul(&at, x)
		x.Copy(&tmp)
		cx.Scale(c, x)
		num.Add(num, &cx)
		if positive {
			den.Add(den, &cx)
		} else {
			den.Sub(den, &cx)
		}
		positive = !positive
	}

	var f mat.Dense
	if err := f.Solve(den, num); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("%w: pade denominator: %v", dynamo.ErrNumericalInstability, err)
		}
	}
	for k := 0; k < j; k++ {
		tmp.Mul(&f, &f)
		f.Copy(&tmp)
	}

	for _, v := range f.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite matrix exponential", dynamo.ErrNumericalInstability)
		}
	}

	if dst.IsEmpty() {
		dst.ReuseAs(n, n)
	}
	dst.Copy(&f)
	return nil
}
