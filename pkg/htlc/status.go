package htlc

import (
	"errors"
	"fmt"
)

// Status is the lifecycle of one locked output. The validator itself is
// stateless; Status is tracked by whoever observes which outputs still exist.
type Status string

const (
	StatusLocked         Status = "LOCKED"
	StatusClaimed        Status = "CLAIMED"
	StatusRefunded       Status = "REFUNDED"
	StatusDepositClaimed Status = "DEPOSIT_CLAIMED"
)

// ErrAlreadySpent means the output has left the Locked state.
var ErrAlreadySpent = errors.New("output already spent")

// Terminal reports whether no further spend is possible.
func (s Status) Terminal() bool {
	return s == StatusClaimed || s == StatusRefunded || s == StatusDepositClaimed
}

// Transition returns the status reached by applying an authorized action.
func Transition(from Status, a Action) (Status, error) {
	if from != StatusLocked {
		return from, fmt.Errorf("%w: status %s", ErrAlreadySpent, from)
	}
	switch a.Kind() {
	case ActionReveal:
		return StatusClaimed, nil
	case ActionRefund:
		return StatusRefunded, nil
	case ActionClaimDeposit:
		return StatusDepositClaimed, nil
	default:
		return from, fmt.Errorf("unknown action %q", a.Kind())
	}
}
