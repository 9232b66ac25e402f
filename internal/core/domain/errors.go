package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation error")
	// ErrInvalidState indicates an operation the session state machine does not define from the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrTimeout indicates the identity backend did not answer in time.
	ErrTimeout = errors.New("timeout")
	// ErrNoSession indicates there is no remembered session to resume.
	ErrNoSession = errors.New("no remembered session")
)

// ValidationError reports a malformed route construction. It is a programmer
// error and is surfaced immediately.
type ValidationError struct {
	Route  RouteName
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("route %q: %s", e.Route, e.Reason)
	}
	return fmt.Sprintf("route %q: parameter %q: %s", e.Route, e.Param, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// BackendError is an expected, recoverable failure reported by the identity
// backend. Message is shown to the user verbatim.
type BackendError struct {
	Op      Operation
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// TransitionError reports an operation requested from a state that does not define it.
type TransitionError struct {
	From StateKind
	Op   Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: state=%s op=%s", e.From, e.Op)
}

// Is lets errors.Is(err, ErrInvalidState) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidState
}
