package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse lists the outcome of every readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SessionCredentialsRequest is the body of login and signup.
type SessionCredentialsRequest struct {
	Identifier string `json:"identifier"`
	Credential string `json:"credential"`
}

// IdentityResponse describes the signed-in account.
type IdentityResponse struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// SessionStateResponse is the wire form of a session state.
type SessionStateResponse struct {
	State    string            `json:"state"`
	Identity *IdentityResponse `json:"identity,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// NewSessionStateResponse renders state for clients.
func NewSessionStateResponse(state domain.SessionState) SessionStateResponse {
	resp := SessionStateResponse{State: domain.KindOf(state).String()}
	switch s := state.(type) {
	case domain.Authenticated:
		resp.Identity = &IdentityResponse{
			ID:       s.Identity.ID,
			Username: s.Identity.Username,
			Email:    s.Identity.Email,
		}
	case domain.Error:
		resp.Message = s.Message
	}
	return resp
}

// TransitionResponse is pushed to stream clients on every state change.
type TransitionResponse struct {
	Seq  uint64               `json:"seq"`
	Op   string               `json:"op"`
	From SessionStateResponse `json:"from"`
	To   SessionStateResponse `json:"to"`
	At   time.Time            `json:"at"`
}

func newTransitionResponse(tr domain.Transition) TransitionResponse {
	return TransitionResponse{
		Seq:  tr.Seq,
		Op:   string(tr.Op),
		From: NewSessionStateResponse(tr.From),
		To:   NewSessionStateResponse(tr.To),
		At:   tr.At,
	}
}

// NavigateRequest pushes a route either by its string form or by name and parameters.
type NavigateRequest struct {
	Route     string            `json:"route"`
	Name      string            `json:"name"`
	Params    map[string]string `json:"params"`
	Query     map[string]string `json:"query"`
	PopUpTo   string            `json:"pop_up_to"`
	Inclusive bool              `json:"inclusive"`
	SingleTop bool              `json:"single_top"`
}

// RouteResponse is a route descriptor together with its link form.
type RouteResponse struct {
	domain.Route
	Link string `json:"link"`
}

func newRouteResponse(route domain.Route) RouteResponse {
	return RouteResponse{Route: route, Link: route.String()}
}

// NavigationResponse describes the back-stack, bottom first.
type NavigationResponse struct {
	Current   RouteResponse   `json:"current"`
	BackStack []RouteResponse `json:"back_stack"`
}

// NewNavigationResponse renders a non-empty back-stack.
func NewNavigationResponse(stack []domain.Route) NavigationResponse {
	resp := NavigationResponse{BackStack: make([]RouteResponse, len(stack))}
	for i, route := range stack {
		resp.BackStack[i] = newRouteResponse(route)
	}
	if len(stack) > 0 {
		resp.Current = resp.BackStack[len(stack)-1]
	}
	return resp
}

// BackResponse reports whether a back navigation removed an entry.
type BackResponse struct {
	Popped     bool               `json:"popped"`
	Navigation NavigationResponse `json:"navigation"`
}

// StreamMessage is one websocket frame.
type StreamMessage struct {
	Type       string                `json:"type"`
	Session    *SessionStateResponse `json:"session,omitempty"`
	Transition *TransitionResponse   `json:"transition,omitempty"`
	Navigation *NavigationResponse   `json:"navigation,omitempty"`
}
