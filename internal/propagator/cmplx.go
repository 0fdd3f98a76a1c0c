package propagator

import (
	"errors"
	"math/cmplx"
)

var errSingular = errors.New("singular matrix")

// cinverse inverts a small dense complex matrix by Gauss-Jordan elimination
// with partial pivoting. The input is not modified.
func cinverse(a [][]complex128) ([][]complex128, error) {
	n := len(a)
	w := make([][]complex128, n)
	inv := make([][]complex128, n)
	scale := 0.0
	for i := range a {
		w[i] = append([]complex128(nil), a[i]...)
		inv[i] = make([]complex128, n)
		inv[i][i] = 1
		for _, v := range a[i] {
			if m := cmplx.Abs(v); m > scale {
				scale = m
			}
		}
	}
	tiny := scale * 1e-13

	for col := 0; col < n; col++ {
		piv, best := col, cmplx.Abs(w[col][col])
		for r := col + 1; r < n; r++ {
			if m := cmplx.Abs(w[r][col]); m > best {
				piv, best = r, m
			}
		}
		if best <= tiny {
			return nil, errSingular
		}
		w[col], w[piv] = w[piv], w[col]
		inv[col], inv[piv] = inv[piv], inv[col]

		p := 1 / w[col][col]
		for j := 0; j < n; j++ {
			w[col][j] *= p
			inv[col][j] *= p
		}
		for r := 0; r < n; r++ {
			if r == col || w[r][col] == 0 {
				continue
			}
			f := w[r][col]
			for j := 0; j < n; j++ {
				w[r][j] -= f * w[col][j]
				inv[r][j] -= f * inv[col][j]
			}
		}
	}
	return inv, nil
}
