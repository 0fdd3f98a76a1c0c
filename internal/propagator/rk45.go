package propagator

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/cestsim/internal/dynamo"
)

const (
	DefaultRK45Tol      = 1e-10
	DefaultRK45MaxSteps = 1_000_000
)

// Dormand-Prince tableau. dpB[i] holds the weights of stages 1..i+1 for
// stage i+2; dpE is the difference between the 5th and 4th order weights.
var (
	dpB = [6][5]float64{
		{1.0 / 5.0},
		{3.0 / 40.0, 9.0 / 40.0},
		{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
		{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
		{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
	}
	dpC = [6]float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0}
	dpE = [7]float64{
		35.0/384.0 - 5179.0/57600.0,
		0,
		500.0/1113.0 - 7571.0/16695.0,
		125.0/192.0 - 393.0/640.0,
		-2187.0/6784.0 + 92097.0/339200.0,
		11.0/84.0 - 187.0/2100.0,
		-1.0 / 40.0,
	}
)

// RK45 integrates dX/dt = A·X from X(0) = I with adaptive Dormand-Prince
// steps. It is far slower than Eigen or Pade and serves as an independent
// reference when validating them.
type RK45 struct {
	Tol      float64
	MaxSteps int

	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		Tol:      DefaultRK45Tol,
		MaxSteps: DefaultRK45MaxSteps,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (*RK45) Name() string { return "rk45" }

func (r *RK45) Expm(dst *mat.Dense, a mat.Matrix, dt float64) error {
	n, _ := a.Dims()
	x := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, i, 1)
	}

	tol := r.Tol
	if tol <= 0 {
		tol = DefaultRK45Tol
	}
	ws := newDPWorkspace(n)

	t, h := 0.0, dt
	for steps := 0; t < dt; {
		if steps >= r.MaxSteps {
			return fmt.Errorf("%w: rk45 exceeded %d steps over %gs", dynamo.ErrNumericalInstability, r.MaxSteps, dt)
		}
		last := false
		if remaining := dt - t; h >= remaining {
			h, last = remaining, true
		}

		ratio := ws.step(a, x, h) / tol
		if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			return fmt.Errorf("%w: rk45 produced non-finite values", dynamo.ErrNumericalInstability)
		}
		if ratio <= 1 {
			x.Copy(ws.next)
			steps++
			if last {
				break
			}
			t += h
		}
		h *= r.scale(ratio)
		if h <= dt*1e-15 {
			return fmt.Errorf("%w: rk45 step size underflow", dynamo.ErrNumericalInstability)
		}
	}

	if dst.IsEmpty() {
		dst.ReuseAs(n, n)
	}
	dst.Copy(x)
	return nil
}

func (r *RK45) scale(ratio float64) float64 {
	switch {
	case ratio > 1:
		return math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25))
	case ratio > 0:
		return math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2))
	}
	return r.maxScale
}

type dpWorkspace struct {
	k     [7]*mat.Dense
	stage *mat.Dense
	next  *mat.Dense
	tmp   *mat.Dense
}

func newDPWorkspace(n int) *dpWorkspace {
	ws := &dpWorkspace{
		stage: mat.NewDense(n, n, nil),
		next:  mat.NewDense(n, n, nil),
		tmp:   mat.NewDense(n, n, nil),
	}
	for i := range ws.k {
		ws.k[i] = mat.NewDense(n, n, nil)
	}
	return ws
}

// combine writes x + h·Σ w[i]·k[i] into dst.
func (ws *dpWorkspace) combine(dst, x *mat.Dense, h float64, w []float64) {
	dst.Copy(x)
	for i, c := range w {
		if c == 0 {
			continue
		}
		ws.tmp.Scale(h*c, ws.k[i])
		dst.Add(dst, ws.tmp)
	}
}

// step computes the 5th order solution after h into ws.next and returns the
// scaled error estimate.
func (ws *dpWorkspace) step(a mat.Matrix, x *mat.Dense, h float64) float64 {
	ws.k[0].Mul(a, x)
	for s := 0; s < 5; s++ {
		ws.combine(ws.stage, x, h, dpB[s][:s+1])
		ws.k[s+1].Mul(a, ws.stage)
	}
	ws.combine(ws.next, x, h, dpC[:])
	ws.k[6].Mul(a, ws.next)

	n, _ := x.Dims()
	errMax := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			est := 0.0
			for s, e := range dpE {
				est += e * ws.k[s].At(i, j)
			}
			est *= h
			scale := 1 + math.Abs(x.At(i, j))
			errMax = math.Max(errMax, math.Abs(est)/scale)
		}
	}
	return errMax
}
