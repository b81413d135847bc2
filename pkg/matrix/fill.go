package matrix

import "math/rand"

// IndexSum returns a rows×cols matrix with element (i, j) = i + j.
// It is the default fill for both operands of a run.
func IndexSum(rows, cols int) *Dense {
	m := &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.data[i*cols+j] = float64(i + j)
		}
	}
	return m
}

// Random returns a rows×cols matrix of values in [0, 1) from a seeded source,
// so that every rank regenerating the same inputs gets identical values.
func Random(rows, cols int, seed int64) *Dense {
	rng := rand.New(rand.NewSource(seed))
	m := &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
	for i := range m.data {
		m.data[i] = rng.Float64()
	}
	return m
}
