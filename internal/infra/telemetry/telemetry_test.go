package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

func TestSessionMetricsRecords(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewSessionMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create session metrics: %v", err)
	}

	metrics.ObserveTransition(domain.OpLogin, domain.StateLoading)
	metrics.ObserveTransition(domain.OpLogin, domain.StateAuthenticated)
	metrics.ObserveBackendCall(domain.OpLogin, "success", 25*time.Millisecond)
	metrics.IncStaleResponse(domain.OpSignup)
	metrics.IncNavigation("push", domain.RouteHome)
	metrics.SetBackStackDepth(3)

	if got := testutil.ToFloat64(metrics.Transitions.WithLabelValues("login", "authenticated")); got != 1 {
		t.Fatalf("expected 1 authenticated transition, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.StaleResponses.WithLabelValues("signup")); got != 1 {
		t.Fatalf("expected 1 stale response, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Navigations.WithLabelValues("push", "home")); got != 1 {
		t.Fatalf("expected 1 navigation, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.BackStackDepth); got != 3 {
		t.Fatalf("expected depth 3, got %f", got)
	}
	if samples := testutil.CollectAndCount(metrics.BackendCalls); samples == 0 {
		t.Fatalf("expected backend call histogram to have samples")
	}
}

func TestSessionMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewSessionMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("failed to create session metrics: %v", err)
	}
	second, err := NewSessionMetrics(MetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
	if first.Transitions != second.Transitions || first.BackStackDepth != second.BackStackDepth {
		t.Fatalf("expected collectors to be shared")
	}
}

func TestSessionMetricsNilSafe(t *testing.T) {
	var metrics *SessionMetrics
	metrics.ObserveTransition(domain.OpLogin, domain.StateError)
	metrics.SetBackStackDepth(1)
}
