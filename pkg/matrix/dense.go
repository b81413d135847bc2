// Package matrix provides the exactly-dimensioned, row-major float64 matrix used
// for the operands and the product of a blockmul run.
//
// A Dense may have zero rows or zero columns. Empty row-blocks are a normal part
// of a run: when there are more workers than rows, the trailing workers receive a
// 0×K block and reply with a 0×C block.
package matrix

import (
	"errors"
	"fmt"
)

// ErrInvalidDimensions indicates negative dimensions or a backing slice whose
// length does not match rows*cols.
var ErrInvalidDimensions = errors.New("matrix: invalid dimensions")

// ErrIndexOutOfBounds indicates a row or column index outside the matrix.
var ErrIndexOutOfBounds = errors.New("matrix: index out of bounds")

// ErrDimensionMismatch indicates that two matrices cannot be combined because an
// inner or row-block dimension disagrees.
var ErrDimensionMismatch = errors.New("matrix: dimension mismatch")

// Dense is a row-major matrix of float64 values.
type Dense struct {
	rows, cols int
	data       []float64 // len == rows*cols
}

// New creates a rows×cols matrix of zeros.
func New(rows, cols int) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, rows, cols)
	}
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}, nil
}

// NewFromData wraps an existing row-major slice. The slice is not copied.
func NewFromData(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d with %d values", ErrInvalidDimensions, rows, cols, len(data))
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

// FromRows builds a matrix from a slice of equal-length rows.
// An empty slice yields a 0×0 matrix.
func FromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return &Dense{}, nil
	}

	cols := len(rows[0])
	m := &Dense{rows: len(rows), cols: cols, data: make([]float64, 0, len(rows)*cols)}
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrInvalidDimensions, i, len(row), cols)
		}
		m.data = append(m.data, row...)
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Dense) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Dense) Cols() int { return m.cols }

// Data returns the row-major backing slice. Callers must not resize it.
func (m *Dense) Data() []float64 { return m.data }

// At returns the element at (i, j).
func (m *Dense) At(i, j int) (float64, error) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return 0, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrIndexOutOfBounds, i, j, m.rows, m.cols)
	}
	return m.data[i*m.cols+j], nil
}

// Set assigns v at (i, j).
func (m *Dense) Set(i, j int, v float64) error {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrIndexOutOfBounds, i, j, m.rows, m.cols)
	}
	m.data[i*m.cols+j] = v
	return nil
}

// Row returns row i as a slice aliasing the backing storage.
func (m *Dense) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// RowBlock returns a deep copy of rows [offset, offset+count).
func (m *Dense) RowBlock(offset, count int) (*Dense, error) {
	if offset < 0 || count < 0 || offset+count > m.rows {
		return nil, fmt.Errorf("%w: rows [%d,%d) of %d", ErrIndexOutOfBounds, offset, offset+count, m.rows)
	}

	block := make([]float64, count*m.cols)
	copy(block, m.data[offset*m.cols:(offset+count)*m.cols])
	return &Dense{rows: count, cols: m.cols, data: block}, nil
}

// SetRowBlock copies block into rows [offset, offset+block.Rows()).
func (m *Dense) SetRowBlock(offset int, block *Dense) error {
	if block.cols != m.cols {
		return fmt.Errorf("%w: block has %d columns, matrix has %d", ErrInvalidDimensions, block.cols, m.cols)
	}
	if offset < 0 || offset+block.rows > m.rows {
		return fmt.Errorf("%w: rows [%d,%d) of %d", ErrIndexOutOfBounds, offset, offset+block.rows, m.rows)
	}

	copy(m.data[offset*m.cols:], block.data)
	return nil
}

// Clone returns a deep copy.
func (m *Dense) Clone() *Dense {
	data := make([]float64, len(m.data))
	copy(data, m.data)
	return &Dense{rows: m.rows, cols: m.cols, data: data}
}

// Equal reports whether both matrices have the same shape and identical values.
func (m *Dense) Equal(o *Dense) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range m.data {
		if m.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (m *Dense) String() string {
	return fmt.Sprintf("Dense(%dx%d)", m.rows, m.cols)
}
