package sim

import (
	"fmt"

	"github.com/san-kum/cestsim/internal/dynamo"
)

// ResultBuffer holds one magnetization column per readout, in the order the
// readouts appear in the sequence.
type ResultBuffer struct {
	dim  int
	cols []dynamo.State
	next int
}

func NewResultBuffer(dim, readouts int) *ResultBuffer {
	return &ResultBuffer{dim: dim, cols: make([]dynamo.State, readouts)}
}

// BufferFromColumns rebuilds a buffer from stored columns.
func BufferFromColumns(dim int, cols []dynamo.State) (*ResultBuffer, error) {
	b := NewResultBuffer(dim, len(cols))
	for j, c := range cols {
		if len(c) != dim {
			return nil, fmt.Errorf("%w: column %d has length %d, want %d", dynamo.ErrDimensionMismatch, j, len(c), dim)
		}
		b.cols[j] = c.Clone()
	}
	b.next = len(cols)
	return b, nil
}

// Dim is the magnetization vector length (rows).
func (b *ResultBuffer) Dim() int { return b.dim }

// Len is the number of readout columns.
func (b *ResultBuffer) Len() int { return len(b.cols) }

// Append stores m in the next free column and returns its index.
func (b *ResultBuffer) Append(m dynamo.State) int {
	j := b.next
	if j == len(b.cols) {
		b.cols = append(b.cols, nil)
	}
	b.cols[j] = m.Clone()
	b.next++
	return j
}

// Set stores m in column j.
func (b *ResultBuffer) Set(j int, m dynamo.State) {
	b.cols[j] = m.Clone()
	if j >= b.next {
		b.next = j + 1
	}
}

// Column returns a copy of readout j. Unfilled columns are zero.
func (b *ResultBuffer) Column(j int) dynamo.State {
	if b.cols[j] == nil {
		return make(dynamo.State, b.dim)
	}
	return b.cols[j].Clone()
}

func (b *ResultBuffer) At(i, j int) float64 {
	if b.cols[j] == nil {
		return 0
	}
	return b.cols[j][i]
}

// Row returns component i across all readouts.
func (b *ResultBuffer) Row(i int) []float64 {
	row := make([]float64, len(b.cols))
	for j := range b.cols {
		row[j] = b.At(i, j)
	}
	return row
}
