package comm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/blockmul/pkg/matrix"
)

// ErrCommunication indicates that a send or receive failed. A run does not
// retry individual messages; any communication error aborts it.
var ErrCommunication = errors.New("communication failure")

// ErrMalformedAssignment indicates a decoded assignment whose fields disagree,
// for example a row count that does not match the block it describes.
var ErrMalformedAssignment = errors.New("malformed assignment")

// ErrInvalidRank indicates a rank outside [0, size) or a send to self.
var ErrInvalidRank = errors.New("invalid rank")

// ErrRunInUse indicates that a run name is owned by another coordinator or still
// holds keys from an earlier run.
var ErrRunInUse = errors.New("run name already in use")

// Comm is one rank's endpoint in a world of Size ranks.
// Send and Recv block until the frame has been handed over or ctx is done.
type Comm interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest int, tag Tag, frame []byte) error
	Recv(ctx context.Context, src int, tag Tag) ([]byte, error)
	Close() error
}

// Pinger is implemented by worlds that depend on an external service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func checkPeer(c Comm, peer int, tag Tag) error {
	if err := tag.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	if peer < 0 || peer >= c.Size() || peer == c.Rank() {
		return fmt.Errorf("%w: rank %d has no peer %d in a world of %d", ErrInvalidRank, c.Rank(), peer, c.Size())
	}
	return nil
}

// SendWork sends a work assignment to a worker as four TagToWorker frames.
func SendWork(ctx context.Context, c Comm, dest int, w *WorkAssignment) error {
	if err := w.Validate(); err != nil {
		return err
	}

	frames := [][]byte{
		EncodeInt(w.Offset),
		EncodeInt(w.RowCount),
		EncodeMatrix(w.Rows),
		EncodeMatrix(w.Right),
	}
	for _, frame := range frames {
		if err := c.Send(ctx, dest, TagToWorker, frame); err != nil {
			return fmt.Errorf("failed to send work to rank %d: %w", dest, err)
		}
	}
	return nil
}

// RecvWork receives a work assignment from the coordinator.
func RecvWork(ctx context.Context, c Comm) (*WorkAssignment, error) {
	offset, err := recvInt(ctx, c, CoordinatorRank, TagToWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to receive offset: %w", err)
	}
	rowCount, err := recvInt(ctx, c, CoordinatorRank, TagToWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to receive row count: %w", err)
	}
	rows, err := recvMatrix(ctx, c, CoordinatorRank, TagToWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to receive row block: %w", err)
	}
	right, err := recvMatrix(ctx, c, CoordinatorRank, TagToWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to receive right operand: %w", err)
	}

	w := &WorkAssignment{Offset: offset, RowCount: rowCount, Rows: rows, Right: right}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// SendResult sends a computed block back to the coordinator as three
// TagToCoordinator frames.
func SendResult(ctx context.Context, c Comm, r *ResultAssignment) error {
	if err := r.Validate(); err != nil {
		return err
	}

	frames := [][]byte{
		EncodeInt(r.Offset),
		EncodeInt(r.RowCount),
		EncodeMatrix(r.Rows),
	}
	for _, frame := range frames {
		if err := c.Send(ctx, CoordinatorRank, TagToCoordinator, frame); err != nil {
			return fmt.Errorf("failed to send result to coordinator: %w", err)
		}
	}
	return nil
}

// RecvResult receives a computed block from the given worker.
func RecvResult(ctx context.Context, c Comm, src int) (*ResultAssignment, error) {
	offset, err := recvInt(ctx, c, src, TagToCoordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to receive offset from rank %d: %w", src, err)
	}
	rowCount, err := recvInt(ctx, c, src, TagToCoordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to receive row count from rank %d: %w", src, err)
	}
	rows, err := recvMatrix(ctx, c, src, TagToCoordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to receive block from rank %d: %w", src, err)
	}

	r := &ResultAssignment{Offset: offset, RowCount: rowCount, Rows: rows}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func recvInt(ctx context.Context, c Comm, src int, tag Tag) (int, error) {
	frame, err := c.Recv(ctx, src, tag)
	if err != nil {
		return 0, err
	}
	v, err := DecodeInt(frame)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	return v, nil
}

func recvMatrix(ctx context.Context, c Comm, src int, tag Tag) (*matrix.Dense, error) {
	frame, err := c.Recv(ctx, src, tag)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMatrix(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommunication, err)
	}
	return m, nil
}
