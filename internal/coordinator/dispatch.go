package coordinator

import (
	"context"
	"fmt"

	"github.com/dyluth/blockmul/internal/partition"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/dyluth/blockmul/pkg/matrix"
	"go.uber.org/zap"
)

// dispatch sends every worker its block in worker order. Sends are sequential
// and blocking; the first failure aborts the run.
func (c *Coordinator) dispatch(ctx context.Context, left, right *matrix.Dense, blocks []partition.Block) error {
	for _, b := range blocks {
		rows, err := left.RowBlock(b.Offset, b.RowCount)
		if err != nil {
			return fmt.Errorf("failed to slice rows for worker %d: %w", b.Worker, err)
		}

		c.reporter.Dispatched(b.Worker, b.RowCount, b.Offset)

		work := &comm.WorkAssignment{
			Offset:   b.Offset,
			RowCount: b.RowCount,
			Rows:     rows,
			Right:    right,
		}
		if err := comm.SendWork(ctx, c.comm, b.Worker, work); err != nil {
			return err
		}

		c.logger.Info("block_dispatched",
			zap.Int("worker", b.Worker),
			zap.Int("offset", b.Offset),
			zap.Int("rows", b.RowCount),
		)
	}
	return nil
}
