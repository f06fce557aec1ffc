package survey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when an action does not apply to the session's phase.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrSessionComplete is returned for any mutation attempted after completion.
	ErrSessionComplete = errors.New("session already complete")
	// ErrNotComplete is returned when a batch is requested before completion.
	ErrNotComplete = errors.New("session not complete")
	// ErrAlreadyPersisted is returned when retrying a batch that was already stored.
	ErrAlreadyPersisted = errors.New("responses already persisted")
)

// ValidationError reports an incomplete submission. The session is left untouched.
type ValidationError struct {
	MissingAnswer bool
	MissingText   bool
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.MissingAnswer {
		parts = append(parts, "answer not selected")
	}
	if e.MissingText {
		parts = append(parts, "response text empty")
	}
	return "incomplete response: " + strings.Join(parts, ", ")
}

// PersistenceError wraps a failed batch append. The batch is kept for a manual retry.
type PersistenceError struct {
	SessionID string
	Rows      int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d responses for session %s: %v", e.Rows, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
