package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
)

func waterModel(t *testing.T) *pools.Model {
	t.Helper()
	m, err := pools.New(pools.Pool{R1: 1, R2: 10, F: 1}, nil, nil, pools.DefaultScanner())
	require.NoError(t, err)
	return m
}

func lit(c *Canvas, x, y int) bool {
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

func TestCanvas_SetAndClear(t *testing.T) {
	c := NewCanvas(4, 2)
	assert.Equal(t, 8, c.DotsX())
	assert.Equal(t, 8, c.DotsY())

	c.Set(3, 5)
	assert.True(t, lit(c, 3, 5))
	assert.False(t, lit(c, 2, 5))
	c.Set(-1, 0)
	c.Set(100, 100)

	c.Clear()
	assert.False(t, lit(c, 3, 5))
	assert.Equal(t, strings.Repeat(string(rune(brailleBase)), 4)+"\n", strings.SplitAfter(c.String(), "\n")[0])
}

func TestCanvas_MapFlipsX(t *testing.T) {
	c := NewCanvas(10, 5)
	b := Bounds{MinX: -5, MaxX: 5, MinY: 0, MaxY: 1, FlipX: true}

	x, y := c.Map(b, 5, 1)
	assert.Equal(t, 0, x, "highest offset on the left")
	assert.Equal(t, 0, y, "top row is the maximum")

	x, y = c.Map(b, -5, 0)
	assert.Equal(t, c.DotsX()-1, x)
	assert.Equal(t, c.DotsY()-1, y)
}

func TestCanvas_PlotSeriesConnectsPoints(t *testing.T) {
	c := NewCanvas(10, 5)
	b := Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}
	c.PlotSeries(b, []float64{0, 1}, []float64{0, 0})
	for x := 0; x < c.DotsX(); x++ {
		assert.True(t, lit(c, x, c.DotsY()-1), "dot %d", x)
	}
}

func TestCamera_ProjectsZUp(t *testing.T) {
	cam := NewCamera()
	_, yTop, _, ok := cam.Project(Vec3{Z: 1}, 40, 40)
	require.True(t, ok)
	_, yBottom, _, ok := cam.Project(Vec3{Z: -1}, 40, 40)
	require.True(t, ok)
	assert.Less(t, yTop, yBottom)
}

func TestRender3D_DrawsSphere(t *testing.T) {
	c := NewCanvas(20, 10)
	Render3D(c, BlochSphere(16), NewCamera())
	assert.NotEqual(t, NewCanvas(20, 10).String(), c.String())
}

func TestThemes(t *testing.T) {
	defer SetTheme(ThemeScanner.Name)

	assert.False(t, SetTheme("nope"))
	assert.True(t, SetTheme("retro"))
	assert.Equal(t, "retro", CurrentTheme.Name)

	NextTheme()
	assert.Equal(t, "minimal", CurrentTheme.Name)
	NextTheme()
	assert.Equal(t, "scanner", CurrentTheme.Name)
}

func TestSparklineAndProgressBar(t *testing.T) {
	assert.Equal(t, "─────", Sparkline(nil, 5))
	assert.NotEmpty(t, Sparkline([]float64{1, 0.5, 0.2}, 3))
	assert.Contains(t, ProgressBar(0.5, 10), "█")
	assert.Contains(t, ProgressBar(-1, 4), "░░░░")
}

func TestPlotSpectrum(t *testing.T) {
	spec := &analysis.Spectrum{
		OffsetsPPM: []float64{-2, -1, 0, 1, 2},
		Z:          []float64{0.9, 0.6, 0.1, 0.6, 0.8},
		M0:         1,
		Normalized: true,
	}
	out := PlotSpectrum(spec, 30, 8)
	assert.Contains(t, out, "Z-spectrum")
	assert.Contains(t, out, "+2.0")

	assert.Contains(t, PlotAsymmetry(spec, 20, 5), "MTRasym")
	assert.Empty(t, PlotSpectrum(&analysis.Spectrum{}, 10, 5))
}

func TestDescending(t *testing.T) {
	x, y := descending([]float64{-1, 3, 0}, []float64{10, 30, 0})
	assert.Equal(t, []float64{3, 0, -1}, x)
	assert.Equal(t, []float64{30, 0, 10}, y)
}

type recorder struct{ msgs []tea.Msg }

func (r *recorder) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestForward(t *testing.T) {
	r := &recorder{}
	Forward(r).OnReadout(3, dynamo.State{1, 2, 3})
	require.Len(t, r.msgs, 1)
	assert.Equal(t, ReadoutMsg{Index: 3, M: dynamo.State{1, 2, 3}}, r.msgs[0])
}

func TestProgressModel_LiveSpectrum(t *testing.T) {
	cancelled := false
	m := NewProgressModel(ProgressConfig{
		Title:      "amide_3t",
		Mode:       "sequential",
		Propagator: "eigen",
		OffsetsPPM: []float64{-1, 0, 1},
		RunM0Scan:  true,
		Readouts:   4,
		Model:      waterModel(t),
		Cancel:     func() { cancelled = true },
	})

	var tm tea.Model = m
	tm, _ = tm.Update(ReadoutMsg{Index: 0, M: dynamo.State{0, 0, 0.5}})
	tm, _ = tm.Update(ReadoutMsg{Index: 2, M: dynamo.State{0.1, 0, 0.05}})
	tm, _ = tm.Update(ReadoutMsg{Index: 3, M: dynamo.State{0, 0, 0.4}})

	pm := tm.(ProgressModel)
	assert.Equal(t, 3, pm.Received())
	xs, ys := pm.LiveZ()
	assert.Equal(t, []float64{0, 1}, xs)
	assert.InDeltaSlice(t, []float64{0.1, 0.8}, ys, 1e-12)
	assert.Contains(t, pm.View(), "AMIDE_3T")
	assert.Contains(t, pm.View(), "3/4")

	tm, cmd := tm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.False(t, tm.(ProgressModel).Done())
}

func TestProgressModel_Done(t *testing.T) {
	m := NewProgressModel(ProgressConfig{Title: "x", OffsetsPPM: []float64{0}, Readouts: 1, Model: waterModel(t)})

	tm, _ := m.Update(DoneMsg{Err: errors.New("boom")})
	pm := tm.(ProgressModel)
	assert.True(t, pm.Done())
	assert.Contains(t, pm.View(), "FAILED: boom")

	spec := &analysis.Spectrum{OffsetsPPM: []float64{0}, Z: []float64{0.2}, M0: 1, Normalized: true}
	tm, _ = m.Update(DoneMsg{Spectrum: spec})
	assert.Contains(t, tm.(ProgressModel).View(), "min Z")
}
