package domain

import (
	"fmt"
	"time"
)

// StateKind discriminates the SessionState variants.
type StateKind int

const (
	StateIdle StateKind = iota
	StateLoading
	StateAuthenticated
	StateUnauthenticated
	StateError
)

// String returns the wire name of the state kind.
func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionState is the closed set of authentication states. Only the variants
// declared in this file implement it, so a type switch over them is exhaustive.
type SessionState interface {
	Kind() StateKind
	sessionState()
}

// Idle means no operation ran yet and the identity has not been checked.
type Idle struct{}

// Loading means a login or signup request is in flight.
type Loading struct{}

// Authenticated means the identity backend confirmed the credentials.
type Authenticated struct {
	Identity Identity
}

// Unauthenticated is the explicit signed-out state.
type Unauthenticated struct{}

// Error carries the reason the most recent operation failed.
type Error struct {
	Message string
}

func (Idle) Kind() StateKind            { return StateIdle }
func (Loading) Kind() StateKind         { return StateLoading }
func (Authenticated) Kind() StateKind   { return StateAuthenticated }
func (Unauthenticated) Kind() StateKind { return StateUnauthenticated }
func (Error) Kind() StateKind           { return StateError }

func (Idle) sessionState()            {}
func (Loading) sessionState()         {}
func (Authenticated) sessionState()   {}
func (Unauthenticated) sessionState() {}
func (Error) sessionState()           {}

func (Idle) String() string            { return StateIdle.String() }
func (Loading) String() string         { return StateLoading.String() }
func (Unauthenticated) String() string { return StateUnauthenticated.String() }

func (s Authenticated) String() string {
	return fmt.Sprintf("%s(%s)", StateAuthenticated, s.Identity.ID)
}

func (s Error) String() string {
	return fmt.Sprintf("%s(%q)", StateError, s.Message)
}

// KindOf tolerates a nil state, which only appears before a controller is constructed.
func KindOf(s SessionState) StateKind {
	if s == nil {
		return StateIdle
	}
	return s.Kind()
}

// Operation names what caused a transition.
type Operation string

const (
	OpLogin   Operation = "login"
	OpSignup  Operation = "signup"
	OpSignout Operation = "signout"
	OpResume  Operation = "resume"
)

// Transition is a single observed change of the session state.
type Transition struct {
	Seq  uint64
	Op   Operation
	From SessionState
	To   SessionState
	At   time.Time
}

// CheckTransition reports whether op may start from the given state.
// Pure function; the Session Controller consults it before mutating anything.
//
//	Idle / Unauthenticated / Error --login|signup--> Loading
//	Idle --resume--> Authenticated | Unauthenticated
//	any --signout--> Unauthenticated
func CheckTransition(from SessionState, op Operation) error {
	kind := KindOf(from)
	switch op {
	case OpLogin, OpSignup:
		switch kind {
		case StateIdle, StateUnauthenticated, StateError:
			return nil
		}
	case OpResume:
		if kind == StateIdle {
			return nil
		}
	case OpSignout:
		return nil
	}
	return &TransitionError{From: kind, Op: op}
}
