package export

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/san-kum/cestsim/internal/analysis"
)

// SVGOptions controls the size and colours of a plot.
type SVGOptions struct {
	Width, Height int
	Stroke        string
	Background    string
	Axis          string
}

func DefaultSVGOptions() SVGOptions {
	return SVGOptions{Width: 640, Height: 400, Stroke: "#00ccff", Background: "#0a0a0a", Axis: "#666688"}
}

const margin = 40.0

// SpectrumSVG plots Z against offset with the highest offset on the left and
// Z from 0 to at least 1.
func SpectrumSVG(spec *analysis.Spectrum, opt SVGOptions) string {
	if spec == nil || spec.Len() < 2 {
		return ""
	}
	pts := spec.SpectrumPoints()
	sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	minX, maxX := pts[0].X, pts[0].X
	maxY := 1.0
	for _, p := range pts {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	rangeX := maxX - minX
	if rangeX == 0 {
		rangeX = 1
	}

	w, h := float64(opt.Width), float64(opt.Height)
	plotW, plotH := w-2*margin, h-2*margin
	sx := func(x float64) float64 { return margin + (maxX-x)/rangeX*plotW }
	sy := func(y float64) float64 { return margin + plotH - y/maxY*plotH }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, opt.Width, opt.Height, opt.Width, opt.Height, opt.Background))

	sb.WriteString(fmt.Sprintf(`<g stroke="%s" stroke-width="1" font-family="monospace" font-size="11" fill="%s">
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<text x="%.1f" y="%.1f" stroke="none">%+.1f</text>
<text x="%.1f" y="%.1f" stroke="none" text-anchor="end">%+.1f</text>
<text x="%.1f" y="%.1f" stroke="none" text-anchor="middle">ppm</text>
<text x="%.1f" y="%.1f" stroke="none" text-anchor="end">%.1f</text>
<text x="%.1f" y="%.1f" stroke="none" text-anchor="end">0</text>
</g>
`, opt.Axis, opt.Axis,
		margin, margin+plotH, margin+plotW, margin+plotH,
		margin, margin, margin, margin+plotH,
		margin, h-margin/3, maxX,
		margin+plotW, h-margin/3, minX,
		margin+plotW/2, h-margin/3,
		margin-4, margin+4, maxY,
		margin-4, margin+plotH))

	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, opt.Stroke))
	for i, p := range pts {
		if i > 0 {
			sb.WriteString(" L")
		}
		sb.WriteString(fmt.Sprintf("%.1f,%.1f", sx(p.X), sy(p.Y)))
	}
	sb.WriteString(`"/>
</svg>
`)
	return sb.String()
}

// WriteSpectrumSVG writes SpectrumSVG output to path.
func WriteSpectrumSVG(path string, spec *analysis.Spectrum, opt SVGOptions) error {
	svg := SpectrumSVG(spec, opt)
	if svg == "" {
		return fmt.Errorf("spectrum needs at least two offsets to plot")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
