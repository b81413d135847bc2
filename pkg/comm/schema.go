package comm

import "fmt"

// Redis key pattern helpers
//
// Key pattern: blockmul:{run}:{entity}

// RouteKey returns the Redis list that carries frames from src to dst under tag.
// Pattern: blockmul:{run}:route:{src}:{dst}:{tag-name}
func RouteKey(run string, src, dst int, tag Tag) string {
	return fmt.Sprintf("blockmul:%s:route:%d:%d:%s", run, src, dst, tag)
}

// RunRecordKey returns the Redis hash holding the run record.
// Pattern: blockmul:{run}:record
func RunRecordKey(run string) string {
	return fmt.Sprintf("blockmul:%s:record", run)
}

// ClaimKey returns the key a coordinator sets when it takes ownership of a run.
// Pattern: blockmul:{run}:claim
func ClaimKey(run string) string {
	return fmt.Sprintf("blockmul:%s:claim", run)
}

// RunPattern returns a SCAN pattern matching every key of a run.
func RunPattern(run string) string {
	return fmt.Sprintf("blockmul:%s:*", run)
}
