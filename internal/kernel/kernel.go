// Package kernel computes a worker's share of the product.
package kernel

import (
	"fmt"

	"github.com/dyluth/blockmul/pkg/matrix"
)

// Multiply returns block × right.
//
// Each output element is accumulated in float64 with the inner index ascending,
// so results are reproducible bit for bit across runs and worker counts.
// A block with zero rows yields a 0×C result.
func Multiply(block, right *matrix.Dense) (*matrix.Dense, error) {
	if block.Cols() != right.Rows() {
		return nil, fmt.Errorf("%w: cannot multiply %dx%d by %dx%d",
			matrix.ErrDimensionMismatch, block.Rows(), block.Cols(), right.Rows(), right.Cols())
	}

	rows, inner, cols := block.Rows(), block.Cols(), right.Cols()
	out, err := matrix.New(rows, cols)
	if err != nil {
		return nil, err
	}

	a, b, c := block.Data(), right.Data(), out.Data()
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			var sum float64
			for j := 0; j < inner; j++ {
				sum += a[i*inner+j] * b[j*cols+k]
			}
			c[i*cols+k] = sum
		}
	}
	return out, nil
}
