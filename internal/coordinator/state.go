package coordinator

import (
	"errors"
	"fmt"
)

// State is the coordinator's position in the run lifecycle.
type State string

const (
	StateInit        State = "INIT"
	StatePartitioned State = "PARTITIONED"
	StateDispatched  State = "DISPATCHED"
	StateGathering   State = "GATHERING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// ErrIllegalTransition is returned when a run tries to move backwards or skip a state.
var ErrIllegalTransition = errors.New("illegal state transition")

var nextState = map[State]State{
	StateInit:        StatePartitioned,
	StatePartitioned: StateDispatched,
	StateDispatched:  StateGathering,
	StateGathering:   StateDone,
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether moving from s to next is legal. States only move
// forward one step at a time; any non-terminal state may fail.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return nextState[s] == next
}

// Validate checks that s is a known state.
func (s State) Validate() error {
	switch s {
	case StateInit, StatePartitioned, StateDispatched, StateGathering, StateDone, StateFailed:
		return nil
	default:
		return fmt.Errorf("invalid state: %q", string(s))
	}
}
