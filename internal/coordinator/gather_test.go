package coordinator

import (
	"math/rand"
	"testing"

	"github.com/dyluth/blockmul/internal/kernel"
	"github.com/dyluth/blockmul/internal/partition"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/dyluth/blockmul/pkg/matrix"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockResults computes every worker's reply for left × right directly
func blockResults(t testing.TB, left, right *matrix.Dense, blocks []partition.Block) map[int]*comm.ResultAssignment {
	results := make(map[int]*comm.ResultAssignment, len(blocks))
	for _, b := range blocks {
		rows, err := left.RowBlock(b.Offset, b.RowCount)
		require.NoError(t, err)
		product, err := kernel.Multiply(rows, right)
		require.NoError(t, err)
		results[b.Worker] = &comm.ResultAssignment{Offset: b.Offset, RowCount: b.RowCount, Rows: product}
	}
	return results
}

func TestAssembler(t *testing.T) {
	left := matrix.IndexSum(5, 5)
	right := matrix.IndexSum(5, 5)
	blocks, err := partition.Partition(5, 3)
	require.NoError(t, err)
	results := blockResults(t, left, right, blocks)

	t.Run("assembles in any order", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)

		for _, worker := range []int{3, 1, 2} {
			require.NoError(t, asm.Merge(worker, results[worker]))
		}
		got, err := asm.Result()
		require.NoError(t, err)

		want, err := kernel.Multiply(left, right)
		require.NoError(t, err)
		assert.True(t, want.Equal(got))
	})

	t.Run("result unavailable until complete", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		require.NoError(t, asm.Merge(1, results[1]))

		assert.Equal(t, 2, asm.Pending())
		assert.False(t, asm.Complete())
		_, err = asm.Result()
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("rejects duplicate reply", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		require.NoError(t, asm.Merge(2, results[2]))
		assert.ErrorIs(t, asm.Merge(2, results[2]), ErrDuplicateReply)
	})

	t.Run("rejects unknown worker", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		assert.ErrorIs(t, asm.Merge(4, results[1]), ErrUnexpectedBlock)
	})

	t.Run("rejects block at another worker's offset", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		assert.ErrorIs(t, asm.Merge(1, results[2]), ErrUnexpectedBlock)
		assert.Equal(t, 3, asm.Pending())
	})

	t.Run("rejects wrong width", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		narrow, err := matrix.New(2, 4)
		require.NoError(t, err)
		err = asm.Merge(1, &comm.ResultAssignment{Offset: 0, RowCount: 2, Rows: narrow})
		assert.ErrorIs(t, err, matrix.ErrDimensionMismatch)
	})

	t.Run("result is a copy", func(t *testing.T) {
		asm, err := NewAssembler(blocks, 5, 5)
		require.NoError(t, err)
		for worker := 1; worker <= 3; worker++ {
			require.NoError(t, asm.Merge(worker, results[worker]))
		}

		first, err := asm.Result()
		require.NoError(t, err)
		require.NoError(t, first.Set(0, 0, -1))

		second, err := asm.Result()
		require.NoError(t, err)
		v, err := second.At(0, 0)
		require.NoError(t, err)
		assert.Equal(t, 30.0, v)
	})

	t.Run("rejects invalid partition", func(t *testing.T) {
		_, err := NewAssembler(blocks, 6, 5)
		assert.ErrorIs(t, err, partition.ErrInvalidPartition)
	})
}

func TestAssemblerOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every merge order yields the same result", prop.ForAll(
		func(rows, workers int, seed int64) bool {
			left := matrix.Random(rows, 4, seed)
			right := matrix.Random(4, 3, seed+1)

			blocks, err := partition.Partition(rows, workers)
			if err != nil {
				return false
			}
			results := blockResults(t, left, right, blocks)

			inOrder, err := NewAssembler(blocks, rows, 3)
			if err != nil {
				return false
			}
			for _, b := range blocks {
				if err := inOrder.Merge(b.Worker, results[b.Worker]); err != nil {
					return false
				}
			}

			shuffled, err := NewAssembler(blocks, rows, 3)
			if err != nil {
				return false
			}
			for _, i := range rand.New(rand.NewSource(seed)).Perm(workers) {
				if err := shuffled.Merge(i+1, results[i+1]); err != nil {
					return false
				}
			}

			a, err := inOrder.Result()
			if err != nil {
				return false
			}
			b, err := shuffled.Result()
			if err != nil {
				return false
			}
			return a.Equal(b)
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 12),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
