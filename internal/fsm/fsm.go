// Package fsm enforces the legal session lifecycle transitions.
package fsm

import (
	"github.com/Shivay00001/aria-runtime/pkg/models"
)

// validTransitions is the full transition table. Terminal states map to nil.
var validTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionIdle:      {models.SessionRunning, models.SessionCancelled},
	models.SessionRunning:   {models.SessionWaiting, models.SessionDone, models.SessionFailed, models.SessionCancelled},
	models.SessionWaiting:   {models.SessionRunning, models.SessionFailed, models.SessionCancelled},
	models.SessionDone:      nil,
	models.SessionFailed:    nil,
	models.SessionCancelled: nil,
}

// Transition is one recorded state change.
type Transition struct {
	From models.SessionStatus
	To   models.SessionStatus
}

// SessionFSM tracks one session's lifecycle. It is local to a kernel run and
// not safe for concurrent use; the kernel is single-threaded by design.
type SessionFSM struct {
	sessionID string
	state     models.SessionStatus
	history   []Transition
}

// New creates an FSM in the IDLE state.
func New(sessionID string) *SessionFSM {
	return &SessionFSM{sessionID: sessionID, state: models.SessionIdle}
}

// State returns the current state.
func (f *SessionFSM) State() models.SessionStatus { return f.state }

// SessionID returns the owning session id.
func (f *SessionFSM) SessionID() string { return f.sessionID }

// IsTerminal reports whether no further transitions are possible.
func (f *SessionFSM) IsTerminal() bool { return f.state.IsTerminal() }

// Transition moves to the requested state or returns
// InvalidStateTransitionError if the move is not in the table.
func (f *SessionFSM) Transition(to models.SessionStatus) error {
	for _, allowed := range validTransitions[f.state] {
		if allowed == to {
			f.history = append(f.history, Transition{From: f.state, To: to})
			f.state = to
			return nil
		}
	}
	return &models.InvalidStateTransitionError{From: f.state, To: to}
}

// History returns a copy of the recorded transitions, in order.
func (f *SessionFSM) History() []Transition {
	out := make([]Transition, len(f.history))
	copy(out, f.history)
	return out
}
