// Package partition splits the rows of the left operand into one contiguous
// block per worker.
package partition

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWorkers is returned when there is no worker to assign rows to.
	ErrNoWorkers = errors.New("at least one worker is required")

	// ErrNegativeRows is returned for a negative row count.
	ErrNegativeRows = errors.New("row count cannot be negative")

	// ErrInvalidPartition is returned by Validate when blocks do not tile [0, rows).
	ErrInvalidPartition = errors.New("invalid partition")
)

// Block is the range of rows assigned to one worker.
type Block struct {
	Worker   int // Worker rank, 1..W
	Offset   int // First row of the block
	RowCount int // Number of rows, may be zero
}

// End returns the row index one past the last row of the block.
func (b Block) End() int {
	return b.Offset + b.RowCount
}

// Partition assigns rows to workers 1..workers.
//
// Every worker gets rows/workers rows; the first rows%workers workers get one
// extra. Offsets accumulate from zero in worker order. When there are more
// workers than rows, trailing workers get empty blocks.
func Partition(rows, workers int) ([]Block, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoWorkers, workers)
	}
	if rows < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeRows, rows)
	}

	base := rows / workers
	remainder := rows % workers

	blocks := make([]Block, workers)
	offset := 0
	for i := range blocks {
		worker := i + 1
		count := base
		if worker <= remainder {
			count++
		}
		blocks[i] = Block{Worker: worker, Offset: offset, RowCount: count}
		offset += count
	}
	return blocks, nil
}

// Validate checks that blocks cover [0, rows) exactly once, in worker order,
// with sizes differing by at most one.
func Validate(blocks []Block, rows int) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: no blocks", ErrInvalidPartition)
	}

	next := 0
	minRows, maxRows := blocks[0].RowCount, blocks[0].RowCount
	for i, b := range blocks {
		if b.Worker != i+1 {
			return fmt.Errorf("%w: block %d belongs to worker %d", ErrInvalidPartition, i, b.Worker)
		}
		if b.RowCount < 0 {
			return fmt.Errorf("%w: worker %d has %d rows", ErrInvalidPartition, b.Worker, b.RowCount)
		}
		if b.Offset != next {
			return fmt.Errorf("%w: worker %d starts at row %d, expected %d", ErrInvalidPartition, b.Worker, b.Offset, next)
		}
		next = b.End()
		minRows = min(minRows, b.RowCount)
		maxRows = max(maxRows, b.RowCount)
	}

	if next != rows {
		return fmt.Errorf("%w: blocks cover %d rows, expected %d", ErrInvalidPartition, next, rows)
	}
	if maxRows-minRows > 1 {
		return fmt.Errorf("%w: block sizes range from %d to %d", ErrInvalidPartition, minRows, maxRows)
	}
	return nil
}

// ForWorker returns the block assigned to worker.
func ForWorker(blocks []Block, worker int) (Block, bool) {
	if worker < 1 || worker > len(blocks) {
		return Block{}, false
	}
	return blocks[worker-1], true
}
