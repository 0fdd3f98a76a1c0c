package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
	"github.com/san-kum/cestsim/internal/seq"
	"github.com/san-kum/cestsim/internal/sim"
)

// M0ThresholdPPM is the offset beyond which a readout is treated as
// unsaturated when the sequence has no explicit M0 scan.
const M0ThresholdPPM = 190

// Spectrum is the normalised water signal over saturation offsets.
type Spectrum struct {
	OffsetsPPM []float64
	Z          []float64
	// M0 is the reference signal; 1 when Normalized is false.
	M0         float64
	Normalized bool
}

// ZSpectrum extracts the water Mz row of buf, one readout per offset of s.
func ZSpectrum(buf *sim.ResultBuffer, model *pools.Model, s *seq.Sequence) (*Spectrum, error) {
	mz := buf.Row(model.Z(0))
	offsets := s.OffsetsPPM

	if s.RunM0Scan {
		if len(mz) != len(offsets)+1 {
			return nil, fmt.Errorf("%w: %d readouts for %d offsets plus m0", dynamo.ErrDimensionMismatch, len(mz), len(offsets))
		}
		return normalise(offsets, mz[1:], mz[0])
	}

	if len(mz) != len(offsets) {
		return nil, fmt.Errorf("%w: %d readouts for %d offsets", dynamo.ErrDimensionMismatch, len(mz), len(offsets))
	}
	var (
		refs   []float64
		kept   []float64
		keptMz []float64
	)
	for i, o := range offsets {
		if math.Abs(o) >= M0ThresholdPPM {
			refs = append(refs, mz[i])
			continue
		}
		kept = append(kept, o)
		keptMz = append(keptMz, mz[i])
	}
	if len(refs) == 0 {
		return &Spectrum{OffsetsPPM: append([]float64(nil), offsets...), Z: append([]float64(nil), mz...), M0: 1}, nil
	}
	return normalise(kept, keptMz, floats.Sum(refs)/float64(len(refs)))
}

func normalise(offsets, mz []float64, m0 float64) (*Spectrum, error) {
	if m0 == 0 || math.IsNaN(m0) {
		return nil, fmt.Errorf("%w: m0 reference signal is %g", dynamo.ErrNumericalInstability, m0)
	}
	z := append([]float64(nil), mz...)
	floats.Scale(1/m0, z)
	return &Spectrum{
		OffsetsPPM: append([]float64(nil), offsets...),
		Z:          z,
		M0:         m0,
		Normalized: true,
	}, nil
}

func (s *Spectrum) Len() int { return len(s.Z) }

// At linearly interpolates Z at ppm. Offsets outside the sampled range clamp
// to the nearest end.
func (s *Spectrum) At(ppm float64) float64 {
	if len(s.Z) == 0 {
		return math.NaN()
	}
	xs, ys := s.sorted()
	i := sort.SearchFloat64s(xs, ppm)
	switch {
	case i == 0:
		return ys[0]
	case i == len(xs):
		return ys[len(ys)-1]
	}
	x0, x1 := xs[i-1], xs[i]
	if x1 == x0 {
		return ys[i]
	}
	t := (ppm - x0) / (x1 - x0)
	return ys[i-1] + t*(ys[i]-ys[i-1])
}

// sorted returns copies of offsets and Z ordered by offset.
func (s *Spectrum) sorted() ([]float64, []float64) {
	idx := make([]int, len(s.OffsetsPPM))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.OffsetsPPM[idx[a]] < s.OffsetsPPM[idx[b]] })
	xs := make([]float64, len(idx))
	ys := make([]float64, len(idx))
	for k, i := range idx {
		xs[k], ys[k] = s.OffsetsPPM[i], s.Z[i]
	}
	return xs, ys
}
