// Package coordinator implements rank 0 of a blockmul run: it partitions the
// left operand, dispatches one row-block to every worker, gathers the replies
// in whatever order they arrive and assembles the product.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dyluth/blockmul/internal/partition"
	"github.com/dyluth/blockmul/pkg/comm"
	"github.com/dyluth/blockmul/pkg/matrix"
	"go.uber.org/zap"
)

// ErrTooFewProcesses is returned when the world has no worker rank.
var ErrTooFewProcesses = errors.New("at least two processes are required")

// Reporter receives the human-facing progress events of a run. Started is
// called once the world and operands have been accepted, before any dispatch.
type Reporter interface {
	Started(tasks int)
	Dispatched(worker, rows, offset int)
	Received(worker int)
}

// Recorder persists the run record. Implemented by comm.RedisComm.
type Recorder interface {
	SaveRunRecord(ctx context.Context, r *comm.RunRecord) error
}

// Claimer takes exclusive ownership of a run's shared state before any frame is
// sent. Implemented by comm.RedisComm.
type Claimer interface {
	Claim(ctx context.Context) error
}

// Options configures a Coordinator. All fields are optional.
type Options struct {
	Run      string
	Reporter Reporter
	Recorder Recorder
	Claimer  Claimer
	Logger   *zap.Logger
}

// Coordinator drives one run from INIT to DONE.
type Coordinator struct {
	comm     comm.Comm
	run      string
	reporter Reporter
	recorder Recorder
	claimer  Claimer
	logger   *zap.Logger

	mu      sync.RWMutex
	state   State
	replies int
	record  comm.RunRecord
}

// New creates a coordinator on the rank-0 endpoint c.
func New(c comm.Comm, opts Options) (*Coordinator, error) {
	if c.Rank() != comm.CoordinatorRank {
		return nil, fmt.Errorf("%w: coordinator must be rank %d, got %d", comm.ErrInvalidRank, comm.CoordinatorRank, c.Rank())
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}

	return &Coordinator{
		comm:     c,
		run:      opts.Run,
		reporter: reporter,
		recorder: opts.Recorder,
		claimer:  opts.Claimer,
		logger:   logger.Named("coordinator"),
		state:    StateInit,
	}, nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Replies returns the number of worker replies merged so far.
func (c *Coordinator) Replies() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.replies
}

// Run computes left × right across the world's workers.
// A Coordinator runs once; a second call fails with ErrIllegalTransition.
func (c *Coordinator) Run(ctx context.Context, left, right *matrix.Dense) (*matrix.Dense, error) {
	if s := c.State(); s != StateInit {
		return nil, fmt.Errorf("%w: run already started (state %s)", ErrIllegalTransition, s)
	}

	result, err := c.execute(ctx, left, right)
	if err != nil {
		c.fail(ctx, err)
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) execute(ctx context.Context, left, right *matrix.Dense) (*matrix.Dense, error) {
	size := c.comm.Size()
	if size < 2 {
		return nil, fmt.Errorf("%w: world has %d", ErrTooFewProcesses, size)
	}
	if left.Cols() != right.Rows() {
		return nil, fmt.Errorf("%w: left is %dx%d, right is %dx%d",
			matrix.ErrDimensionMismatch, left.Rows(), left.Cols(), right.Rows(), right.Cols())
	}
	if c.claimer != nil {
		if err := c.claimer.Claim(ctx); err != nil {
			return nil, err
		}
	}

	c.reporter.Started(size)

	now := time.Now().UnixMilli()
	c.mu.Lock()
	c.record = comm.RunRecord{
		Run:         c.run,
		Size:        size,
		Rows:        left.Rows(),
		Inner:       left.Cols(),
		Cols:        right.Cols(),
		State:       string(StateInit),
		StartedAtMs: now,
		UpdatedAtMs: now,
	}
	c.mu.Unlock()

	c.logger.Info("run_started",
		zap.String("run", c.run),
		zap.Int("size", size),
		zap.Int("rows", left.Rows()),
		zap.Int("inner", left.Cols()),
		zap.Int("cols", right.Cols()),
	)
	c.saveRecord(ctx)

	blocks, err := partition.Partition(left.Rows(), size-1)
	if err != nil {
		if errors.Is(err, partition.ErrNoWorkers) {
			return nil, fmt.Errorf("%w: %w", ErrTooFewProcesses, err)
		}
		return nil, err
	}
	if err := partition.Validate(blocks, left.Rows()); err != nil {
		return nil, err
	}
	if err := c.transition(ctx, StatePartitioned); err != nil {
		return nil, err
	}

	if err := c.dispatch(ctx, left, right, blocks); err != nil {
		return nil, err
	}
	if err := c.transition(ctx, StateDispatched); err != nil {
		return nil, err
	}

	if err := c.transition(ctx, StateGathering); err != nil {
		return nil, err
	}
	result, err := c.gather(ctx, blocks, left.Rows(), right.Cols())
	if err != nil {
		return nil, err
	}

	if err := c.transition(ctx, StateDone); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) transition(ctx context.Context, next State) error {
	c.mu.Lock()
	from := c.state
	if !from.CanTransition(next) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, next)
	}
	c.state = next
	c.record.State = string(next)
	c.record.UpdatedAtMs = time.Now().UnixMilli()
	c.mu.Unlock()

	c.logger.Debug("state_transition", zap.String("from", string(from)), zap.String("to", string(next)))
	c.saveRecord(ctx)
	return nil
}

func (c *Coordinator) fail(ctx context.Context, cause error) {
	c.mu.Lock()
	from := c.state
	if from.CanTransition(StateFailed) {
		c.state = StateFailed
		c.record.State = string(StateFailed)
		c.record.Error = cause.Error()
		c.record.UpdatedAtMs = time.Now().UnixMilli()
	}
	c.mu.Unlock()

	c.logger.Error("run_failed", zap.String("state", string(from)), zap.Error(cause))

	// The run context may already be done when the failure came from it
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	c.saveRecord(recordCtx)
}

// saveRecord writes the run record if a recorder is configured. Failures are
// logged and do not affect the run.
func (c *Coordinator) saveRecord(ctx context.Context) {
	if c.recorder == nil || c.run == "" {
		return
	}

	c.mu.RLock()
	record := c.record
	c.mu.RUnlock()
	if record.Size == 0 {
		return
	}

	if err := c.recorder.SaveRunRecord(ctx, &record); err != nil {
		c.logger.Warn("run_record_failed", zap.String("state", record.State), zap.Error(err))
	}
}

type nopReporter struct{}

func (nopReporter) Started(int)              {}
func (nopReporter) Dispatched(int, int, int) {}
func (nopReporter) Received(int)             {}
