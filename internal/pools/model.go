package pools

import (
	"fmt"
	"math"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// Model is an immutable description of the pools and scanner constants of one
// simulation. Matrix index offsets are fixed at construction.
//
// Fractions are independent inputs: the water fraction is not reduced by the
// CEST pool fractions.
type Model struct {
	water   Pool
	cest    []Pool
	mt      *MTPool
	scanner ScannerConfig

	n   int // water + CEST pools
	dim int
}

// New validates the pools and returns a Model. Water is pool 0, CEST pools
// follow in the given order, mt may be nil.
func New(water Pool, cest []Pool, mt *MTPool, scanner ScannerConfig) (*Model, error) {
	if err := validatePool("water", water, false); err != nil {
		return nil, err
	}
	for i, p := range cest {
		if err := validatePool(fmt.Sprintf("cest pool %d", i+1), p, true); err != nil {
			return nil, err
		}
	}
	if mt != nil {
		if err := validatePool("mt pool", mt.Pool, true); err != nil {
			return nil, err
		}
		if mt.Lineshape < LineshapeNone || mt.Lineshape > LineshapeSuperLorentzian {
			return nil, fmt.Errorf("%w: mt pool lineshape unspecified", dynamo.ErrConfiguration)
		}
	}
	if scanner.B0 <= 0 || scanner.Gamma <= 0 {
		return nil, fmt.Errorf("%w: scanner b0 and gamma must be positive (b0=%g, gamma=%g)",
			dynamo.ErrConfiguration, scanner.B0, scanner.Gamma)
	}
	if scanner.RelB1 < 0 {
		return nil, fmt.Errorf("%w: relative b1 must not be negative, got %g", dynamo.ErrConfiguration, scanner.RelB1)
	}

	m := &Model{
		water:   water,
		cest:    append([]Pool(nil), cest...),
		scanner: scanner,
		n:       len(cest) + 1,
	}
	m.water.DW, m.water.K = 0, 0
	if mt != nil {
		cp := *mt
		m.mt = &cp
	}
	m.dim = 3 * m.n
	if m.mt != nil {
		m.dim++
	}
	return m, nil
}

func validatePool(name string, p Pool, exchanging bool) error {
	for _, v := range []float64{p.R1, p.R2, p.F, p.DW, p.K} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite parameters", dynamo.ErrConfiguration, name)
		}
	}
	if p.F <= 0 || p.F > 1 {
		return fmt.Errorf("%w: %s fraction %g outside (0, 1]", dynamo.ErrConfiguration, name, p.F)
	}
	if p.R1 < 0 || p.R2 < 0 {
		return fmt.Errorf("%w: %s relaxation rates must not be negative", dynamo.ErrConfiguration, name)
	}
	if exchanging && p.K < 0 {
		return fmt.Errorf("%w: %s exchange rate must not be negative", dynamo.ErrConfiguration, name)
	}
	return nil
}

func (m *Model) Water() Pool            { return m.water }
func (m *Model) Scanner() ScannerConfig { return m.scanner }
func (m *Model) NumCEST() int           { return len(m.cest) }
func (m *Model) HasMT() bool            { return m.mt != nil }

// NumPools counts water and CEST pools; the MT pool is not included.
func (m *Model) NumPools() int { return m.n }

// Dim is the length of a magnetization vector for this model.
func (m *Model) Dim() int { return m.dim }

// CEST returns the i-th CEST pool (0-based).
func (m *Model) CEST(i int) Pool { return m.cest[i] }

// Pool returns pool p where 0 is water and 1..N are CEST pools.
func (m *Model) Pool(p int) Pool {
	if p == 0 {
		return m.water
	}
	return m.cest[p-1]
}

// MT returns a copy of the MT pool and whether one is configured.
func (m *Model) MT() (MTPool, bool) {
	if m.mt == nil {
		return MTPool{}, false
	}
	return *m.mt, true
}

// X, Y and Z return the vector index of pool p's components.
func (m *Model) X(p int) int { return p }
func (m *Model) Y(p int) int { return m.n + p }
func (m *Model) Z(p int) int { return 2*m.n + p }

// ZMT is the index of the MT pool's longitudinal component, or -1.
func (m *Model) ZMT() int {
	if m.mt == nil {
		return -1
	}
	return 3 * m.n
}

// Transverse is the number of leading in-phase and out-of-phase entries.
func (m *Model) Transverse() int { return 2 * m.n }

// InitialMagnetization returns the fully relaxed vector scaled by scale.
func (m *Model) InitialMagnetization(scale float64) dynamo.State {
	s := make(dynamo.State, m.dim)
	for p := 0; p < m.n; p++ {
		s[m.Z(p)] = m.Pool(p).F * scale
	}
	if m.mt != nil {
		s[m.ZMT()] = m.mt.F * scale
	}
	return s
}
