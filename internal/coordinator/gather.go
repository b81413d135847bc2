package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/blockmul/internal/partition"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/dyluth/blockmul/pkg/matrix"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUnexpectedBlock is returned for a reply from an unknown worker or one
	// whose offset or row count differs from the block that worker was sent.
	ErrUnexpectedBlock = errors.New("unexpected result block")

	// ErrDuplicateReply is returned when a worker's block is merged twice.
	ErrDuplicateReply = errors.New("duplicate reply")

	// ErrIncomplete is returned when the result is requested before every
	// worker has replied.
	ErrIncomplete = errors.New("result incomplete")
)

// Assembler writes worker replies into the result matrix. Each worker's
// region is written exactly once, and the result is only available after every
// worker has been merged. An Assembler is not safe for concurrent use; the
// gather loop is its only caller.
type Assembler struct {
	blocks []partition.Block
	merged map[int]bool
	result *matrix.Dense
}

// NewAssembler prepares an empty rows×cols result for the given partition.
func NewAssembler(blocks []partition.Block, rows, cols int) (*Assembler, error) {
	if err := partition.Validate(blocks, rows); err != nil {
		return nil, err
	}
	result, err := matrix.New(rows, cols)
	if err != nil {
		return nil, err
	}

	return &Assembler{
		blocks: blocks,
		merged: make(map[int]bool, len(blocks)),
		result: result,
	}, nil
}

// Merge places worker's reply at the offset the reply carries.
func (a *Assembler) Merge(worker int, r *comm.ResultAssignment) error {
	expected, ok := partition.ForWorker(a.blocks, worker)
	if !ok {
		return fmt.Errorf("%w: no block was assigned to worker %d", ErrUnexpectedBlock, worker)
	}
	if a.merged[worker] {
		return fmt.Errorf("%w: worker %d", ErrDuplicateReply, worker)
	}
	if r.Offset != expected.Offset || r.RowCount != expected.RowCount {
		return fmt.Errorf("%w: worker %d replied with rows [%d,%d), expected [%d,%d)",
			ErrUnexpectedBlock, worker, r.Offset, r.Offset+r.RowCount, expected.Offset, expected.End())
	}
	if r.Rows.Cols() != a.result.Cols() {
		return fmt.Errorf("%w: worker %d replied with %d columns, expected %d",
			matrix.ErrDimensionMismatch, worker, r.Rows.Cols(), a.result.Cols())
	}
	if r.Rows.Rows() != r.RowCount {
		return fmt.Errorf("%w: worker %d block has %d rows, reply says %d",
			comm.ErrMalformedAssignment, worker, r.Rows.Rows(), r.RowCount)
	}

	if err := a.result.SetRowBlock(r.Offset, r.Rows); err != nil {
		return fmt.Errorf("failed to merge worker %d: %w", worker, err)
	}
	a.merged[worker] = true
	return nil
}

// Pending returns the number of workers that have not replied yet.
func (a *Assembler) Pending() int {
	return len(a.blocks) - len(a.merged)
}

// Complete reports whether every worker has been merged.
func (a *Assembler) Complete() bool {
	return a.Pending() == 0
}

// Result returns a copy of the assembled product once every worker has been
// merged.
func (a *Assembler) Result() (*matrix.Dense, error) {
	if !a.Complete() {
		return nil, fmt.Errorf("%w: %d of %d workers pending", ErrIncomplete, a.Pending(), len(a.blocks))
	}
	return a.result.Clone(), nil
}

type reply struct {
	worker int
	result *comm.ResultAssignment
}

// gather receives one reply per worker. A goroutine per worker waits on that
// worker's route, and all replies funnel into this goroutine, which is the only
// writer of the result.
func (c *Coordinator) gather(ctx context.Context, blocks []partition.Block, rows, cols int) (*matrix.Dense, error) {
	asm, err := NewAssembler(blocks, rows, cols)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan reply)
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range blocks {
		worker := b.Worker
		g.Go(func() error {
			r, err := comm.RecvResult(gctx, c.comm, worker)
			if err != nil {
				return fmt.Errorf("worker %d: %w", worker, err)
			}
			select {
			case replies <- reply{worker: worker, result: r}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(replies)
	}()

	for rep := range replies {
		if err := asm.Merge(rep.worker, rep.result); err != nil {
			cancel()
			for range replies {
			}
			<-waitErr
			return nil, err
		}

		c.mu.Lock()
		c.replies++
		c.record.Replies = c.replies
		c.record.UpdatedAtMs = time.Now().UnixMilli()
		c.mu.Unlock()

		c.reporter.Received(rep.worker)
		c.logger.Info("reply_merged",
			zap.Int("worker", rep.worker),
			zap.Int("offset", rep.result.Offset),
			zap.Int("rows", rep.result.RowCount),
			zap.Int("pending", asm.Pending()),
		)
		c.saveRecord(ctx)
	}

	if err := <-waitErr; err != nil {
		return nil, err
	}
	return asm.Result()
}
