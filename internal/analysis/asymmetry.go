package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// pairTolerance is how close −Δ must be to a sampled offset to count as its
// mirror.
const pairTolerance = 1e-6

// Asymmetry is MTRasym(Δ) = Z(−Δ) − Z(Δ) at positive offsets Δ.
type Asymmetry struct {
	OffsetsPPM []float64
	Values     []float64
}

// MTRAsym pairs every positive offset with its negative mirror. Offsets
// without a mirror are skipped.
func (s *Spectrum) MTRAsym() Asymmetry {
	var a Asymmetry
	for i, o := range s.OffsetsPPM {
		if o <= 0 {
			continue
		}
		for k, m := range s.OffsetsPPM {
			if math.Abs(m+o) < pairTolerance {
				a.OffsetsPPM = append(a.OffsetsPPM, o)
				a.Values = append(a.Values, s.Z[k]-s.Z[i])
				break
			}
		}
	}
	sort.Sort(byOffset(a))
	return a
}

// Lookup returns the asymmetry at an offset within tolerance.
func (a Asymmetry) Lookup(ppm float64) (float64, bool) {
	for i, o := range a.OffsetsPPM {
		if math.Abs(o-ppm) < pairTolerance {
			return a.Values[i], true
		}
	}
	return 0, false
}

type byOffset Asymmetry

func (b byOffset) Len() int           { return len(b.OffsetsPPM) }
func (b byOffset) Less(i, j int) bool { return b.OffsetsPPM[i] < b.OffsetsPPM[j] }
func (b byOffset) Swap(i, j int) {
	b.OffsetsPPM[i], b.OffsetsPPM[j] = b.OffsetsPPM[j], b.OffsetsPPM[i]
	b.Values[i], b.Values[j] = b.Values[j], b.Values[i]
}

// Summary condenses a spectrum for reports.
type Summary struct {
	Points        int     `json:"points"`
	MinZ          float64 `json:"min_z"`
	MinZOffset    float64 `json:"min_z_offset_ppm"`
	MaxAsym       float64 `json:"max_mtr_asym"`
	MaxAsymOffset float64 `json:"max_mtr_asym_offset_ppm"`
	M0            float64 `json:"m0"`
}

func (s *Spectrum) Summary() Summary {
	sum := Summary{Points: len(s.Z), M0: s.M0}
	if len(s.Z) == 0 {
		return sum
	}
	i := floats.MinIdx(s.Z)
	sum.MinZ, sum.MinZOffset = s.Z[i], s.OffsetsPPM[i]

	if a := s.MTRAsym(); len(a.Values) > 0 {
		k := floats.MaxIdx(a.Values)
		sum.MaxAsym, sum.MaxAsymOffset = a.Values[k], a.OffsetsPPM[k]
	}
	return sum
}
