package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/cestsim/internal/analysis"
	"github.com/san-kum/cestsim/internal/dynamo"
	"github.com/san-kum/cestsim/internal/pools"
)

const (
	spectrumCols = 48
	spectrumRows = 12
	blochCols    = 22
	blochRows    = 11
)

// ReadoutMsg carries one readout column into the monitor.
type ReadoutMsg struct {
	Index int
	M     dynamo.State
}

// DoneMsg ends a run; Spectrum is nil when Err is set.
type DoneMsg struct {
	Spectrum *analysis.Spectrum
	Err      error
}

type tickMsg time.Time

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward returns an observer that posts every readout to s.
func Forward(s Sender) dynamo.Observer {
	return dynamo.ObserverFunc(func(index int, m dynamo.State) {
		s.Send(ReadoutMsg{Index: index, M: m})
	})
}

// ProgressConfig describes the run being monitored.
type ProgressConfig struct {
	Title      string
	Mode       string
	Propagator string
	OffsetsPPM []float64
	RunM0Scan  bool
	Readouts   int
	Model      *pools.Model
	// Cancel is called when the user quits before the run finishes.
	Cancel func()
}

// ProgressModel is a bubbletea model showing a run as it fills its readouts.
type ProgressModel struct {
	cfg ProgressConfig

	received int
	m0       float64
	z        []float64
	seen     []bool
	last     dynamo.State
	current  int

	frame    int
	start    time.Time
	elapsed  time.Duration
	done     bool
	err      error
	spectrum *analysis.Spectrum

	camera   *Camera
	sphere   *Wireframe
	showHelp bool
}

func NewProgressModel(cfg ProgressConfig) ProgressModel {
	n := len(cfg.OffsetsPPM)
	return ProgressModel{
		cfg:     cfg,
		m0:      1,
		z:       make([]float64, n),
		seen:    make([]bool, n),
		current: -1,
		start:   time.Now(),
		camera:  NewCamera(),
		sphere:  BlochSphere(24),
	}
}

func (m ProgressModel) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cfg.Cancel != nil {
				m.cfg.Cancel()
			}
			return m, tea.Quit
		case "t":
			NextTheme()
		case "x":
			m.camera.RotateX(0.15)
		case "X":
			m.camera.RotateX(-0.15)
		case "y":
			m.camera.RotateY(0.15)
		case "Y":
			m.camera.RotateY(-0.15)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		case "?":
			m.showHelp = !m.showHelp
		}
	case ReadoutMsg:
		m.record(msg)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.spectrum = msg.Spectrum
		m.elapsed = time.Since(m.start)
	case tickMsg:
		m.frame++
		if !m.done {
			m.elapsed = time.Since(m.start)
		}
		return m, tick()
	}
	return m, nil
}

// record folds a readout into the live spectrum. With an M0 scan the first
// readout is the reference; the others follow the offsets in order.
func (m *ProgressModel) record(msg ReadoutMsg) {
	m.received++
	m.last = msg.M
	if m.cfg.Model == nil {
		return
	}
	mz := msg.M[m.cfg.Model.Z(0)]

	idx := msg.Index
	if m.cfg.RunM0Scan {
		if idx == 0 {
			if mz != 0 {
				m.m0 = mz
			}
			return
		}
		idx--
	}
	if idx < 0 || idx >= len(m.z) {
		return
	}
	m.z[idx] = mz / m.m0
	m.seen[idx] = true
	m.current = idx
}

// LiveZ returns the offsets received so far with their Z values, sorted by
// offset.
func (m ProgressModel) LiveZ() ([]float64, []float64) {
	var xs, ys []float64
	for i, ok := range m.seen {
		if ok {
			xs = append(xs, m.cfg.OffsetsPPM[i])
			ys = append(ys, m.z[i])
		}
	}
	sort.Sort(pairs{xs, ys})
	return xs, ys
}

type pairs struct{ x, y []float64 }

func (p pairs) Len() int           { return len(p.x) }
func (p pairs) Less(i, j int) bool { return p.x[i] < p.x[j] }
func (p pairs) Swap(i, j int) {
	p.x[i], p.x[j] = p.x[j], p.x[i]
	p.y[i], p.y[j] = p.y[j], p.y[i]
}

func (m ProgressModel) Received() int { return m.received }
func (m ProgressModel) Done() bool    { return m.done }
func (m ProgressModel) Err() error    { return m.err }

func (m ProgressModel) View() string {
	var s strings.Builder
	s.WriteString(Title.Render(strings.ToUpper(m.cfg.Title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	total := max(m.cfg.Readouts, 1)
	frac := float64(m.received) / float64(total)
	s.WriteString(ProgressBar(frac, 30) + fmt.Sprintf(" %d/%d\n\n", m.received, m.cfg.Readouts))

	s.WriteString(Metric("mode", m.cfg.Mode) + "\n")
	s.WriteString(Metric("propagator", m.cfg.Propagator) + "\n")
	s.WriteString(Metric("elapsed", m.elapsed.Round(time.Millisecond).String()) + "\n")
	if m.current >= 0 {
		s.WriteString(Metric("offset", fmt.Sprintf("%+.2f ppm", m.cfg.OffsetsPPM[m.current])) + "\n")
		s.WriteString(Metric("Z", fmt.Sprintf("%.4f", m.z[m.current])) + "\n")
	}
	if m.spectrum != nil {
		sum := m.spectrum.Summary()
		s.WriteString("\n" + Separator(34) + "\n")
		s.WriteString(Metric("min Z", fmt.Sprintf("%.4f @ %+.2f ppm", sum.MinZ, sum.MinZOffset)) + "\n")
		s.WriteString(Metric("max asym", fmt.Sprintf("%.4f @ %+.2f ppm", sum.MaxAsym, sum.MaxAsymOffset)) + "\n")
	}

	left := Panel.Render(s.String())
	right := lipgloss.JoinVertical(lipgloss.Left,
		Panel.Render(Subtle.Render("Z-spectrum")+"\n"+m.spectrumCanvas().String()),
		Panel.Render(Subtle.Render("water Bloch vector")+"\n"+m.blochCanvas().String()),
	)
	view := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	hints := KeyHint.Render("q:quit  t:theme  x/y:rotate  +/-:zoom  ?:help")
	if m.showHelp {
		hints = KeyHint.Render(helpText)
	}
	return view + "\n" + hints + "\n"
}

const helpText = `q / esc   cancel the run and quit
t         cycle colour themes
x / X     tilt the Bloch view
y / Y     spin the Bloch view
+ / -     zoom the Bloch view`

func (m ProgressModel) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED: " + m.err.Error())
	case m.done:
		return StatusDone.Render("DONE")
	default:
		return StatusRunning.Render(AnimatedSpinner(m.frame) + " RUNNING")
	}
}

func (m ProgressModel) spectrumCanvas() *Canvas {
	c := NewCanvas(spectrumCols, spectrumRows)
	if len(m.cfg.OffsetsPPM) == 0 {
		return c
	}
	b := Bounds{
		MinX:  minOf(m.cfg.OffsetsPPM),
		MaxX:  maxOf(m.cfg.OffsetsPPM),
		MinY:  0,
		MaxY:  1,
		FlipX: true,
	}
	xs, ys := m.LiveZ()
	if len(ys) > 0 {
		b.MaxY = math.Max(1, maxOf(ys))
	}
	c.PlotSeries(b, xs, ys)
	return c
}

func (m ProgressModel) blochCanvas() *Canvas {
	c := NewCanvas(blochCols, blochRows)
	w := NewWireframe()
	w.Edges = append(w.Edges, m.sphere.Edges...)
	if m.last != nil && m.cfg.Model != nil {
		md := m.cfg.Model
		norm := md.Water().F
		if m.cfg.RunM0Scan {
			norm = math.Abs(m.m0)
		}
		w.AddVector(Vec3{
			X: m.last[md.X(0)] / norm,
			Y: m.last[md.Y(0)] / norm,
			Z: m.last[md.Z(0)] / norm,
		})
	}
	Render3D(c, w, m.camera)
	return c
}
