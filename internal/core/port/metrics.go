package port

import (
	"time"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// SessionMetrics captures telemetry hooks for the session state machine.
type SessionMetrics interface {
	ObserveTransition(op domain.Operation, to domain.StateKind)
	ObserveBackendCall(op domain.Operation, outcome string, duration time.Duration)
	IncStaleResponse(op domain.Operation)
}

// NavigationMetrics captures telemetry hooks for the back-stack.
type NavigationMetrics interface {
	IncNavigation(action string, route domain.RouteName)
	SetBackStackDepth(depth int)
}
