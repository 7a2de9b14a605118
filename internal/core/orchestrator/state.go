package orchestrator

import (
	"errors"
	"time"
)

// State is the phase of one recovery request.
type State string

const (
	StateInitial         State = "initial"
	StateRecoveryCreated State = "recovery_created"
	StateAssigned        State = "assigned"
	StateFailed          State = "failed"
	// StateDryRun ends a testbed run after logging the action it would have taken.
	StateDryRun State = "dry_run"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Assigned, Failed and DryRun are terminal.
var ValidTransitions = map[State][]State{
	StateInitial:         {StateRecoveryCreated, StateFailed, StateDryRun},
	StateRecoveryCreated: {StateAssigned, StateFailed, StateDryRun},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the state.
func (s State) IsTerminal() bool {
	return len(ValidTransitions[s]) == 0
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateInitial:
		return "Initial - request built, nothing submitted"
	case StateRecoveryCreated:
		return "Recovery created - waiting for assignment"
	case StateAssigned:
		return "Assigned - recovery workflow handed to the agents"
	case StateFailed:
		return "Failed - phase aborted"
	case StateDryRun:
		return "Dry run - testbed mode, nothing submitted"
	default:
		return "Unknown state"
	}
}
