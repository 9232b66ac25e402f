package domain

import (
	"errors"
	"testing"
)

func TestCheckTransition(t *testing.T) {
	all := []SessionState{
		Idle{},
		Loading{},
		Authenticated{Identity: Identity{ID: "U1"}},
		Unauthenticated{},
		Error{Message: "bad credentials"},
	}

	allowed := map[Operation]map[StateKind]bool{
		OpLogin:   {StateIdle: true, StateUnauthenticated: true, StateError: true},
		OpSignup:  {StateIdle: true, StateUnauthenticated: true, StateError: true},
		OpResume:  {StateIdle: true},
		OpSignout: {StateIdle: true, StateLoading: true, StateAuthenticated: true, StateUnauthenticated: true, StateError: true},
	}

	for op, kinds := range allowed {
		for _, state := range all {
			err := CheckTransition(state, op)
			if kinds[state.Kind()] {
				if err != nil {
					t.Fatalf("%s from %s: unexpected error %v", op, state.Kind(), err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("%s from %s: expected ErrInvalidState, got %v", op, state.Kind(), err)
			}
		}
	}
}

func TestStateStrings(t *testing.T) {
	if got := (Authenticated{Identity: Identity{ID: "U1"}}).String(); got != "authenticated(U1)" {
		t.Fatalf("unexpected authenticated string %q", got)
	}
	if got := (Error{Message: "timeout"}).String(); got != `error("timeout")` {
		t.Fatalf("unexpected error string %q", got)
	}
	if KindOf(nil) != StateIdle {
		t.Fatalf("nil state should read as idle")
	}
}

func TestBackendErrorMessage(t *testing.T) {
	cause := errors.New("status 401")
	err := &BackendError{Op: OpLogin, Message: "invalid credentials", Err: cause}
	if err.Error() != "login: invalid credentials" {
		t.Fatalf("unexpected error text %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected BackendError to unwrap to its cause")
	}
}
