package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// MetricsOptions configures the session and navigation collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// SessionMetrics exposes Prometheus collectors for the session state machine
// and the back-stack. It implements port.SessionMetrics and port.NavigationMetrics.
type SessionMetrics struct {
	Transitions    *prometheus.CounterVec
	BackendCalls   *prometheus.HistogramVec
	StaleResponses *prometheus.CounterVec
	Navigations    *prometheus.CounterVec
	BackStackDepth prometheus.Gauge
}

// NewSessionMetrics constructs the collectors and registers them with the provided registerer.
func NewSessionMetrics(opts MetricsOptions) (*SessionMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "studynest"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Total number of session state transitions partitioned by operation and resulting state.",
	}, []string{"op", "state"}))
	if err != nil {
		return nil, err
	}

	backendCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "backend_call_duration_seconds",
		Help:      "Histogram of identity backend call latencies partitioned by operation and outcome.",
		Buckets:   buckets,
	}, []string{"op", "outcome"})
	if err := reg.Register(backendCalls); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register backend call collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("existing backend call collector has unexpected type %T", already.ExistingCollector)
		}
		backendCalls = existing
	}

	stale, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "stale_responses_total",
		Help:      "Total number of identity backend responses discarded because a newer operation superseded them.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}

	navigations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "navigation",
		Name:      "navigations_total",
		Help:      "Total number of back-stack changes partitioned by action and route.",
	}, []string{"action", "route"}))
	if err != nil {
		return nil, err
	}

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "navigation",
		Name:      "back_stack_depth",
		Help:      "Current number of entries on the back-stack.",
	})
	if err := reg.Register(depth); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register back stack collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Gauge)
		if !ok {
			return nil, fmt.Errorf("existing back stack collector has unexpected type %T", already.ExistingCollector)
		}
		depth = existing
	}

	return &SessionMetrics{
		Transitions:    transitions,
		BackendCalls:   backendCalls,
		StaleResponses: stale,
		Navigations:    navigations,
		BackStackDepth: depth,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register counter collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing counter collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}

func (m *SessionMetrics) ObserveTransition(op domain.Operation, to domain.StateKind) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(string(op), to.String()).Inc()
}

func (m *SessionMetrics) ObserveBackendCall(op domain.Operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendCalls.WithLabelValues(string(op), outcome).Observe(duration.Seconds())
}

func (m *SessionMetrics) IncStaleResponse(op domain.Operation) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(string(op)).Inc()
}

func (m *SessionMetrics) IncNavigation(action string, route domain.RouteName) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(action, string(route)).Inc()
}

func (m *SessionMetrics) SetBackStackDepth(depth int) {
	if m == nil {
		return
	}
	m.BackStackDepth.Set(float64(depth))
}
