package order

import "fmt"

// Event is a lifecycle transition trigger. The ledger is the single
// authority for applying events; solver-side checks are advisory only.
type Event uint8

const (
	// EventClaimExecution moves Pending -> Executing. Exactly one solver
	// attempt wins; concurrent claims on the same order lose with
	// ErrNotInExpectedState.
	EventClaimExecution Event = iota

	// EventExecuteFill moves Executing -> Completed after the ledger
	// re-validates actualOutput >= minOutput.
	EventExecuteFill

	// EventFail moves Executing -> Failed. Escrowed input stays
	// recoverable by the owner.
	EventFail

	// EventCancel moves Pending -> Cancelled (owner refund), and also
	// serves the Failed -> Cancelled recovery edge.
	EventCancel

	// EventExpire moves Pending -> Failed once the decrypted deadline has
	// passed. No funds move.
	EventExpire
)

var eventNames = map[Event]string{
	EventClaimExecution: "claim_execution",
	EventExecuteFill:    "execute_fill",
	EventFail:           "fail",
	EventCancel:         "cancel",
	EventExpire:         "expire",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// transitions is the closed transition table. Monotonic: no edge leaves a
// terminal state except the Failed -> Cancelled recovery refund.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventClaimExecution: StatusExecuting,
		EventCancel:         StatusCancelled,
		EventExpire:         StatusFailed,
	},
	StatusExecuting: {
		EventExecuteFill: StatusCompleted,
		EventFail:        StatusFailed,
	},
	StatusFailed: {
		EventCancel: StatusCancelled,
	},
}

// NextStatus resolves the target state for an event, or
// ErrNotInExpectedState when the edge does not exist.
func NextStatus(from Status, event Event) (Status, error) {
	if next, ok := transitions[from][event]; ok {
		return next, nil
	}
	return 0, fmt.Errorf("%w: %s on %s", ErrNotInExpectedState, event, from)
}

// CanTransition reports whether the edge exists without applying it.
func CanTransition(from Status, event Event) bool {
	_, ok := transitions[from][event]
	return ok
}

// IsTerminal reports whether no further execution can happen from the
// state. Failed is settlement-terminal but still admits the cancel
// recovery edge.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}
