package lifecycle

import (
	"fmt"

	"binScope/internal/model"
)

// State is the lifecycle phase of a position as seen by one call.
type State uint8

const (
	Open State = iota
	// Draining is the in-flight state of a withdrawal between hand-off and
	// confirmation. Observe never returns it and Transition rejects it.
	Draining
	Empty
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Draining:
		return "draining"
	case Empty:
		return "empty"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Observe derives the starting state for op. Without an observation the
// engine's own checks are trusted: withdrawals and deposits start from Open,
// close from Empty.
func Observe(op string, obs *model.PositionObservation) State {
	if obs == nil {
		if op == model.OpClose {
			return Empty
		}
		return Open
	}
	if obs.Drained() {
		return Empty
	}
	return Open
}

// InFlight returns the state a position holds while op is being handed off.
func InFlight(from State, op string) State {
	if from == Open && (op == model.OpRemoveSelective || op == model.OpRemoveAll) {
		return Draining
	}
	return from
}

// Transition returns the state reached by applying op to from. fullDrain is
// only consulted for selective withdrawals.
func Transition(from State, op string, fullDrain bool) (State, error) {
	if from == Closed {
		return Closed, model.Violate(model.ErrInvalidTransition, fmt.Sprintf("%s on a closed position", op))
	}

	switch op {
	case model.OpFundOneSide:
		if from == Open || from == Empty {
			return Open, nil
		}
	case model.OpRemoveSelective:
		if from == Open {
			if fullDrain {
				return Empty, nil
			}
			return Open, nil
		}
	case model.OpRemoveAll:
		if from == Open || from == Empty {
			return Empty, nil
		}
	case model.OpClose:
		if from == Empty {
			return Closed, nil
		}
		if from == Open {
			return from, model.Violate(model.ErrPositionNotEmpty, "position still holds liquidity")
		}
	default:
		return from, fmt.Errorf("unknown operation %q", op)
	}
	return from, model.Violate(model.ErrInvalidTransition, fmt.Sprintf("%s not allowed from %s", op, from))
}
