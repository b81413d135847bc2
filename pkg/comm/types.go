package comm

import (
	"fmt"

	"github.com/dyluth/blockmul/pkg/matrix"
)

// Tag distinguishes the direction of a message.
// The numeric values are part of the wire schema and must not change.
type Tag int

const (
	// TagToWorker marks frames sent from the coordinator to a worker.
	TagToWorker Tag = 1

	// TagToCoordinator marks frames sent from a worker back to the coordinator.
	TagToCoordinator Tag = 2
)

// String returns the human-readable tag name.
func (t Tag) String() string {
	switch t {
	case TagToWorker:
		return "to-worker"
	case TagToCoordinator:
		return "to-coordinator"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// Validate checks that the tag is one of the defined values.
func (t Tag) Validate() error {
	switch t {
	case TagToWorker, TagToCoordinator:
		return nil
	default:
		return fmt.Errorf("invalid tag: %d", int(t))
	}
}

// CoordinatorRank is the rank that owns the operands and assembles the result.
const CoordinatorRank = 0

// WorkAssignment is everything a worker needs to compute its share of the product.
type WorkAssignment struct {
	Offset   int           // First row of A covered by this block
	RowCount int           // Number of rows in the block, may be zero
	Rows     *matrix.Dense // RowCount×K slice of A
	Right    *matrix.Dense // All of B, K×C
}

// Validate checks the internal consistency of the assignment.
func (w *WorkAssignment) Validate() error {
	if w.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrMalformedAssignment, w.Offset)
	}
	if w.RowCount < 0 {
		return fmt.Errorf("%w: negative row count %d", ErrMalformedAssignment, w.RowCount)
	}
	if w.Rows == nil || w.Right == nil {
		return fmt.Errorf("%w: missing matrix", ErrMalformedAssignment)
	}
	if w.Rows.Rows() != w.RowCount {
		return fmt.Errorf("%w: row count %d but block has %d rows", ErrMalformedAssignment, w.RowCount, w.Rows.Rows())
	}
	if w.Rows.Cols() != w.Right.Rows() {
		return fmt.Errorf("%w: block is %dx%d, right operand is %dx%d",
			matrix.ErrDimensionMismatch, w.Rows.Rows(), w.Rows.Cols(), w.Right.Rows(), w.Right.Cols())
	}
	return nil
}

// ResultAssignment is a worker's computed row-block of the product.
type ResultAssignment struct {
	Offset   int           // Echoed from the WorkAssignment
	RowCount int           // Echoed from the WorkAssignment
	Rows     *matrix.Dense // RowCount×C block of the product
}

// Validate checks the internal consistency of the result.
func (r *ResultAssignment) Validate() error {
	if r.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrMalformedAssignment, r.Offset)
	}
	if r.RowCount < 0 {
		return fmt.Errorf("%w: negative row count %d", ErrMalformedAssignment, r.RowCount)
	}
	if r.Rows == nil {
		return fmt.Errorf("%w: missing matrix", ErrMalformedAssignment)
	}
	if r.Rows.Rows() != r.RowCount {
		return fmt.Errorf("%w: row count %d but block has %d rows", ErrMalformedAssignment, r.RowCount, r.Rows.Rows())
	}
	return nil
}

// RunRecord is the summary of a run that the coordinator keeps in Redis so that
// a run can be inspected from outside while it is in progress.
type RunRecord struct {
	Run         string `json:"run"`
	Size        int    `json:"size"`
	Rows        int    `json:"rows"`
	Inner       int    `json:"inner"`
	Cols        int    `json:"cols"`
	State       string `json:"state"`
	Replies     int    `json:"replies"`
	Error       string `json:"error,omitempty"`
	StartedAtMs int64  `json:"started_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// Validate checks the record for required fields.
func (r *RunRecord) Validate() error {
	if r.Run == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	if r.Size < 1 {
		return fmt.Errorf("invalid size: %d", r.Size)
	}
	if r.State == "" {
		return fmt.Errorf("state cannot be empty")
	}
	return nil
}
