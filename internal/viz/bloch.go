package viz

import (
	"math"
	"sort"
)

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Length() float64      { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Camera projects the Bloch sphere onto a canvas. The default view looks
// slightly down onto the transverse plane so that +z points up.
type Camera struct {
	Distance   float64
	RotX, RotY float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Distance: 6, RotX: -0.35, RotY: 0.6, Zoom: 1}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(4, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.25, c.Zoom/1.2) }

// view maps magnetization axes to camera space: z up, y into the screen.
func (c *Camera) view(p Vec3) Vec3 {
	p = Vec3{p.X, p.Z, -p.Y}
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	return p
}

// Project returns dot coordinates, depth and whether the point lands on a
// canvas of sw x sh dots.
func (c *Camera) Project(p Vec3, sw, sh int) (int, int, float64, bool) {
	rot := c.view(p).Scale(c.Zoom)
	if rot.Z >= c.Distance-0.1 {
		return 0, 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot.Z)
	unit := float64(min(sw, sh)) / 2.6
	sx := int(rot.X*scale*unit) + sw/2
	sy := int(-rot.Y*scale*unit) + sh/2
	return sx, sy, rot.Z, sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

type Edge struct {
	Start, End Vec3
}

type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe         { return &Wireframe{} }
func (w *Wireframe) AddEdge(s, e Vec3) { w.Edges = append(w.Edges, Edge{s, e}) }

// AddVector draws an arrow from the origin to v.
func (w *Wireframe) AddVector(v Vec3) {
	w.AddEdge(Vec3{}, v)
	l := v.Length()
	if l == 0 {
		return
	}
	head := v.Scale(1 - 0.12/l)
	off := 0.05
	w.AddEdge(v, head.addXY(off, off))
	w.AddEdge(v, head.addXY(-off, -off))
}

func (v Vec3) addXY(dx, dy float64) Vec3 { return Vec3{v.X + dx, v.Y + dy, v.Z} }

type projectedEdge struct {
	x1, y1, x2, y2 int
	depth          float64
}

// Render3D draws the wireframe back to front.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	cw, ch := c.DotsX(), c.DotsY()
	proj := make([]projectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, v1 := cam.Project(e.Start, cw, ch)
		x2, y2, d2, v2 := cam.Project(e.End, cw, ch)
		if v1 || v2 {
			proj = append(proj, projectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].depth < proj[j].depth })
	for _, e := range proj {
		if e.x1 == e.x2 && e.y1 == e.y2 {
			c.Set(e.x1, e.y1)
		} else {
			c.DrawLine(e.x1, e.y1, e.x2, e.y2)
		}
	}
}

// BlochSphere returns the unit sphere outline (equator and two meridians)
// with short axes.
func BlochSphere(segments int) *Wireframe {
	w := NewWireframe()
	circle := func(point func(a float64) Vec3) {
		prev := point(0)
		for i := 1; i <= segments; i++ {
			next := point(2 * math.Pi * float64(i) / float64(segments))
			w.AddEdge(prev, next)
			prev = next
		}
	}
	circle(func(a float64) Vec3 { return Vec3{math.Cos(a), math.Sin(a), 0} })
	circle(func(a float64) Vec3 { return Vec3{math.Cos(a), 0, math.Sin(a)} })
	circle(func(a float64) Vec3 { return Vec3{0, math.Cos(a), math.Sin(a)} })

	o := Vec3{}
	w.AddEdge(o, Vec3{1.2, 0, 0})
	w.AddEdge(o, Vec3{0, 1.2, 0})
	w.AddEdge(o, Vec3{0, 0, 1.2})
	return w
}
