// Package worker implements ranks 1..size-1 of a blockmul run: receive one
// row-block and the right operand, multiply, reply.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/dyluth/blockmul/internal/kernel"
	"github.com/dyluth/blockmul/pkg/comm"
	"go.uber.org/zap"
)

// State is the worker's position in its single-shot lifecycle.
type State string

const (
	StateWaiting  State = "WAITING"
	StateReceived State = "RECEIVED"
	StateComputed State = "COMPUTED"
	StateReplied  State = "REPLIED"
	StateFailed   State = "FAILED"
)

// Worker handles exactly one assignment from the coordinator.
type Worker struct {
	comm   comm.Comm
	logger *zap.Logger

	mu    sync.RWMutex
	state State
}

// New creates a worker on endpoint c, which must not be the coordinator's rank.
func New(c comm.Comm, logger *zap.Logger) (*Worker, error) {
	if c.Rank() == comm.CoordinatorRank || c.Rank() >= c.Size() {
		return nil, fmt.Errorf("%w: worker rank must be in [1,%d), got %d", comm.ErrInvalidRank, c.Size(), c.Rank())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		comm:   c,
		logger: logger.Named("worker").With(zap.Int("rank", c.Rank())),
		state:  StateWaiting,
	}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Run receives the assignment, computes the block and replies. It returns after
// the reply has been handed to the transport.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.run(ctx); err != nil {
		w.setState(StateFailed)
		w.logger.Error("worker_failed", zap.Error(err))
		return err
	}
	return nil
}

func (w *Worker) run(ctx context.Context) error {
	work, err := comm.RecvWork(ctx, w.comm)
	if err != nil {
		return fmt.Errorf("failed to receive assignment: %w", err)
	}
	w.setState(StateReceived)
	w.logger.Debug("assignment_received",
		zap.Int("offset", work.Offset),
		zap.Int("rows", work.RowCount),
		zap.Int("inner", work.Right.Rows()),
		zap.Int("cols", work.Right.Cols()),
	)

	product, err := kernel.Multiply(work.Rows, work.Right)
	if err != nil {
		return fmt.Errorf("failed to compute block at offset %d: %w", work.Offset, err)
	}
	w.setState(StateComputed)

	result := &comm.ResultAssignment{
		Offset:   work.Offset,
		RowCount: work.RowCount,
		Rows:     product,
	}
	if err := comm.SendResult(ctx, w.comm, result); err != nil {
		return fmt.Errorf("failed to reply: %w", err)
	}
	w.setState(StateReplied)
	w.logger.Info("block_replied", zap.Int("offset", work.Offset), zap.Int("rows", work.RowCount))

	return nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}
