package analysis

import "strings"

// Point is one sample of a scatter plot.
type Point struct{ X, Y float64 }

// SpectrumPoints pairs offsets with Z values.
func (s *Spectrum) SpectrumPoints() []Point {
	pts := make([]Point, len(s.Z))
	for i := range s.Z {
		pts[i] = Point{X: s.OffsetsPPM[i], Y: s.Z[i]}
	}
	return pts
}

// ScatterASCII draws points on a width × height character grid with axes
// through zero when visible. Offsets are plotted as given, so unevenly
// spaced lists keep their geometry. The x axis is mirrored when flipX is
// set, matching the NMR convention of decreasing ppm to the right.
func ScatterASCII(points []Point, width, height int, flipX bool) string {
	if len(points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.05
	maxX += rangeX * 0.05
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	column := func(x float64) int {
		c := int((x - minX) / rangeX * float64(width-1))
		if flipX {
			c = width - 1 - c
		}
		return c
	}

	for _, p := range points {
		col := column(p.X)
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := column(0)
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
