package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dyluth/blockmul/pkg/matrix"
)

// Frame encoding
//
// Integers are 8-byte little-endian two's complement. A matrix is an 8-byte
// header (rows uint32, cols uint32, little-endian) followed by rows*cols IEEE-754
// binary64 values, little-endian, in row-major order.

// ErrMalformedFrame indicates a frame whose length or header is inconsistent.
var ErrMalformedFrame = errors.New("malformed frame")

const (
	intFrameLen     = 8
	matrixHeaderLen = 8
)

// EncodeInt encodes v as an integer frame.
func EncodeInt(v int) []byte {
	frame := make([]byte, intFrameLen)
	binary.LittleEndian.PutUint64(frame, uint64(int64(v)))
	return frame
}

// DecodeInt decodes an integer frame.
func DecodeInt(frame []byte) (int, error) {
	if len(frame) != intFrameLen {
		return 0, fmt.Errorf("%w: integer frame has %d bytes", ErrMalformedFrame, len(frame))
	}
	return int(int64(binary.LittleEndian.Uint64(frame))), nil
}

// EncodeMatrix encodes m as a matrix frame.
func EncodeMatrix(m *matrix.Dense) []byte {
	data := m.Data()
	frame := make([]byte, matrixHeaderLen+8*len(data))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(m.Rows()))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(m.Cols()))

	body := frame[matrixHeaderLen:]
	for i, v := range data {
		binary.LittleEndian.PutUint64(body[i*8:], math.Float64bits(v))
	}
	return frame
}

// DecodeMatrix decodes a matrix frame into a new matrix.
func DecodeMatrix(frame []byte) (*matrix.Dense, error) {
	if len(frame) < matrixHeaderLen {
		return nil, fmt.Errorf("%w: matrix frame has %d bytes", ErrMalformedFrame, len(frame))
	}

	rows := int(binary.LittleEndian.Uint32(frame[0:4]))
	cols := int(binary.LittleEndian.Uint32(frame[4:8]))
	body := frame[matrixHeaderLen:]

	// Compare against the body instead of multiplying the header, which a
	// corrupt frame can make overflow
	values := len(body) / 8
	consistent := len(body)%8 == 0
	if cols == 0 {
		consistent = consistent && values == 0
	} else {
		consistent = consistent && values%cols == 0 && values/cols == rows
	}
	if !consistent {
		return nil, fmt.Errorf("%w: %dx%d header with %d body bytes", ErrMalformedFrame, rows, cols, len(body))
	}

	data := make([]float64, values)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
	}
	return matrix.NewFromData(rows, cols, data)
}

// RunRecordToHash converts a RunRecord to a Redis hash.
func RunRecordToHash(r *RunRecord) map[string]interface{} {
	return map[string]interface{}{
		"run":           r.Run,
		"size":          r.Size,
		"rows":          r.Rows,
		"inner":         r.Inner,
		"cols":          r.Cols,
		"state":         r.State,
		"replies":       r.Replies,
		"error":         r.Error,
		"started_at_ms": r.StartedAtMs,
		"updated_at_ms": r.UpdatedAtMs,
	}
}

// HashToRunRecord converts a Redis hash to a RunRecord.
func HashToRunRecord(hash map[string]string) (*RunRecord, error) {
	ints := map[string]*int{}
	r := &RunRecord{
		Run:   hash["run"],
		State: hash["state"],
		Error: hash["error"],
	}
	ints["size"] = &r.Size
	ints["rows"] = &r.Rows
	ints["inner"] = &r.Inner
	ints["cols"] = &r.Cols
	ints["replies"] = &r.Replies

	for field, dst := range ints {
		v, err := strconv.Atoi(hash[field])
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", field, err)
		}
		*dst = v
	}

	var err error
	if r.StartedAtMs, err = parseInt64(hash["started_at_ms"]); err != nil {
		return nil, fmt.Errorf("invalid started_at_ms field: %w", err)
	}
	if r.UpdatedAtMs, err = parseInt64(hash["updated_at_ms"]); err != nil {
		return nil, fmt.Errorf("invalid updated_at_ms field: %w", err)
	}
	return r, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
