package comm

import (
	"testing"

	"github.com/dyluth/blockmul/pkg/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag(t *testing.T) {
	tests := []struct {
		tag     Tag
		name    string
		wantErr bool
	}{
		{TagToWorker, "to-worker", false},
		{TagToCoordinator, "to-coordinator", false},
		{Tag(0), "tag(0)", true},
		{Tag(7), "tag(7)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.tag.String())
			if tt.wantErr {
				assert.Error(t, tt.tag.Validate())
			} else {
				assert.NoError(t, tt.tag.Validate())
			}
		})
	}

	// Wire values are fixed
	assert.Equal(t, 1, int(TagToWorker))
	assert.Equal(t, 2, int(TagToCoordinator))
}

func mustMatrix(t *testing.T, rows [][]float64) *matrix.Dense {
	t.Helper()
	m, err := matrix.FromRows(rows)
	require.NoError(t, err)
	return m
}

func emptyBlock(t *testing.T, cols int) *matrix.Dense {
	t.Helper()
	m, err := matrix.New(0, cols)
	require.NoError(t, err)
	return m
}

func TestWorkAssignmentValidate(t *testing.T) {
	right := mustMatrix(t, [][]float64{{1, 2}, {3, 4}})

	t.Run("valid", func(t *testing.T) {
		w := &WorkAssignment{Offset: 3, RowCount: 1, Rows: mustMatrix(t, [][]float64{{5, 6}}), Right: right}
		assert.NoError(t, w.Validate())
	})

	t.Run("empty block is valid", func(t *testing.T) {
		w := &WorkAssignment{Offset: 5, RowCount: 0, Rows: emptyBlock(t, 2), Right: right}
		assert.NoError(t, w.Validate())
	})

	t.Run("row count disagrees with block", func(t *testing.T) {
		w := &WorkAssignment{Offset: 0, RowCount: 2, Rows: mustMatrix(t, [][]float64{{5, 6}}), Right: right}
		assert.ErrorIs(t, w.Validate(), ErrMalformedAssignment)
	})

	t.Run("negative offset", func(t *testing.T) {
		w := &WorkAssignment{Offset: -1, RowCount: 1, Rows: mustMatrix(t, [][]float64{{5, 6}}), Right: right}
		assert.ErrorIs(t, w.Validate(), ErrMalformedAssignment)
	})

	t.Run("inner dimension mismatch", func(t *testing.T) {
		w := &WorkAssignment{Offset: 0, RowCount: 1, Rows: mustMatrix(t, [][]float64{{5, 6, 7}}), Right: right}
		assert.ErrorIs(t, w.Validate(), matrix.ErrDimensionMismatch)
	})

	t.Run("missing right operand", func(t *testing.T) {
		w := &WorkAssignment{Offset: 0, RowCount: 1, Rows: mustMatrix(t, [][]float64{{5, 6}})}
		assert.ErrorIs(t, w.Validate(), ErrMalformedAssignment)
	})
}

func TestResultAssignmentValidate(t *testing.T) {
	assert.NoError(t, (&ResultAssignment{Offset: 2, RowCount: 1, Rows: mustMatrix(t, [][]float64{{1}})}).Validate())
	assert.ErrorIs(t, (&ResultAssignment{Offset: 2, RowCount: 2, Rows: mustMatrix(t, [][]float64{{1}})}).Validate(), ErrMalformedAssignment)
	assert.ErrorIs(t, (&ResultAssignment{Offset: -2, RowCount: 1, Rows: mustMatrix(t, [][]float64{{1}})}).Validate(), ErrMalformedAssignment)
	assert.ErrorIs(t, (&ResultAssignment{Offset: 0, RowCount: 0}).Validate(), ErrMalformedAssignment)
}

func TestRunRecordValidate(t *testing.T) {
	assert.NoError(t, (&RunRecord{Run: "r1", Size: 3, State: "INIT"}).Validate())
	assert.Error(t, (&RunRecord{Size: 3, State: "INIT"}).Validate())
	assert.Error(t, (&RunRecord{Run: "r1", Size: 0, State: "INIT"}).Validate())
	assert.Error(t, (&RunRecord{Run: "r1", Size: 3}).Validate())
}
