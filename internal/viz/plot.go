package viz

import (
	"fmt"
	"sort"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cestsim/internal/analysis"
)

// PlotSpectrum renders Z against offset with the highest offset on the left.
func PlotSpectrum(spec *analysis.Spectrum, width, height int) string {
	if spec == nil || spec.Len() == 0 {
		return ""
	}
	_, z := descending(spec.OffsetsPPM, spec.Z)
	caption := fmt.Sprintf("Z-spectrum  %+.1f … %+.1f ppm", maxOf(spec.OffsetsPPM), minOf(spec.OffsetsPPM))
	return asciigraph.Plot(z,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(2),
		asciigraph.LowerBound(0),
		asciigraph.Caption(caption),
	)
}

// PlotAsymmetry renders MTRasym over the positive offsets, ascending.
func PlotAsymmetry(spec *analysis.Spectrum, width, height int) string {
	if spec == nil {
		return ""
	}
	a := spec.MTRAsym()
	if len(a.Values) < 2 {
		return ""
	}
	caption := fmt.Sprintf("MTRasym  %.1f … %.1f ppm", a.OffsetsPPM[0], a.OffsetsPPM[len(a.OffsetsPPM)-1])
	return asciigraph.Plot(a.Values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(caption),
	)
}

func descending(xs, ys []float64) ([]float64, []float64) {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] > xs[idx[b]] })
	ox, oy := make([]float64, len(xs)), make([]float64, len(ys))
	for i, k := range idx {
		ox[i], oy[i] = xs[k], ys[k]
	}
	return ox, oy
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	return m
}
