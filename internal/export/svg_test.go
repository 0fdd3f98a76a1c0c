package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/cestsim/internal/analysis"
)

func spectrum() *analysis.Spectrum {
	return &analysis.Spectrum{
		OffsetsPPM: []float64{4, -4, 0},
		Z:          []float64{0.9, 0.95, 0.1},
		M0:         1,
		Normalized: true,
	}
}

func TestSpectrumSVG(t *testing.T) {
	opt := DefaultSVGOptions()
	svg := SpectrumSVG(spectrum(), opt)

	if !strings.HasPrefix(svg, "<?xml") || !strings.Contains(svg, "</svg>") {
		t.Fatalf("not an svg document: %q", svg)
	}
	if !strings.Contains(svg, `stroke="#00ccff"`) {
		t.Error("stroke colour missing")
	}
	// Points run in ascending ppm: -4 ppm at the right margin, +4 at the left.
	if !strings.Contains(svg, `d="M600.0,`) {
		t.Errorf("path should start at the right margin: %s", svg)
	}
	if !strings.Contains(svg, " L40.0,") {
		t.Errorf("path should end at the left margin: %s", svg)
	}
	if strings.Count(svg, " L") != 2 {
		t.Errorf("expected 3 path points, got %d segments", strings.Count(svg, " L"))
	}
}

func TestSpectrumSVG_TooFewPoints(t *testing.T) {
	spec := &analysis.Spectrum{OffsetsPPM: []float64{0}, Z: []float64{0.5}}
	if svg := SpectrumSVG(spec, DefaultSVGOptions()); svg != "" {
		t.Errorf("expected empty output, got %q", svg)
	}
	if err := WriteSpectrumSVG(filepath.Join(t.TempDir(), "z.svg"), spec, DefaultSVGOptions()); err == nil {
		t.Error("expected error for a single offset")
	}
}

func TestWriteSpectrumSVG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "z.svg")
	if err := WriteSpectrumSVG(path, spectrum(), DefaultSVGOptions()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Errorf("svg not written: %v", err)
	}
}
