package viz

import (
	"strings"
)

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
const brailleBase = 0x2800

var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a Braille dot grid of Width x Height cells, addressed in dots
// (2 per cell horizontally, 4 vertically).
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// DotsX and DotsY give the addressable resolution.
func (c *Canvas) DotsX() int { return c.Width * 2 }
func (c *Canvas) DotsY() int { return c.Height * 4 }

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBase
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Bounds is the data window mapped onto a canvas.
type Bounds struct {
	MinX, MaxX, MinY, MaxY float64
	// FlipX draws MaxX on the left, the usual orientation of a Z-spectrum.
	FlipX bool
}

// Map converts data coordinates to dots.
func (c *Canvas) Map(b Bounds, x, y float64) (int, int) {
	rx, ry := b.MaxX-b.MinX, b.MaxY-b.MinY
	if rx == 0 {
		rx = 1
	}
	if ry == 0 {
		ry = 1
	}
	fx := (x - b.MinX) / rx
	if b.FlipX {
		fx = 1 - fx
	}
	fy := (y - b.MinY) / ry
	px := int(fx * float64(c.DotsX()-1))
	py := int((1 - fy) * float64(c.DotsY()-1))
	return px, py
}

// PlotSeries draws the polyline through (xs[i], ys[i]). xs must be sorted.
func (c *Canvas) PlotSeries(b Bounds, xs, ys []float64) {
	for i := range xs {
		x, y := c.Map(b, xs[i], ys[i])
		if i == 0 {
			c.Set(x, y)
			continue
		}
		px, py := c.Map(b, xs[i-1], ys[i-1])
		c.DrawLine(px, py, x, y)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
