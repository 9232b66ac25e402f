package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

type fakeNavigationMetrics struct {
	mu      sync.Mutex
	actions []string
	depth   int
}

func (m *fakeNavigationMetrics) IncNavigation(action string, route domain.RouteName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action+":"+string(route))
}

func (m *fakeNavigationMetrics) SetBackStackDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = depth
}

func stackNames(stack []domain.Route) []domain.RouteName {
	names := make([]domain.RouteName, len(stack))
	for i, r := range stack {
		names[i] = r.Name
	}
	return names
}

func assertStack(t *testing.T, coordinator *RouteCoordinator, want ...domain.RouteName) {
	t.Helper()
	got := stackNames(coordinator.BackStack())
	if len(got) != len(want) {
		t.Fatalf("expected back stack %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected back stack %v, got %v", want, got)
		}
	}
}

func materialParams() map[string]string {
	return map[string]string{
		domain.ParamSubjectID:    "1",
		domain.ParamSubjectName:  "Chem",
		domain.ParamMaterialType: "NOTES",
	}
}

func subjectParams() map[string]string {
	return map[string]string{
		domain.ParamSubjectID:   "1",
		domain.ParamSubjectName: "Chem",
		domain.ParamSubjectCode: "DI01000071",
	}
}

func TestRouteCoordinator_StartsOnLogin(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	assertStack(t, coordinator, domain.RouteLogin)
	if coordinator.Current().Name != domain.RouteLogin {
		t.Fatalf("expected login to be visible, got %s", coordinator.Current().Name)
	}
}

func TestNavigateThenPopRestoresStack(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	if _, err := coordinator.Navigate(domain.RouteHome, nil, nil); err != nil {
		t.Fatalf("navigate home: %v", err)
	}
	before := coordinator.BackStack()

	if _, err := coordinator.Navigate(domain.RouteMaterialList, materialParams(), nil); err != nil {
		t.Fatalf("navigate material_list: %v", err)
	}
	if !coordinator.PopBackStack() {
		t.Fatalf("expected pop to succeed")
	}

	after := coordinator.BackStack()
	if !sameStack(before, after) {
		t.Fatalf("expected %v after pop, got %v", stackNames(before), stackNames(after))
	}
}

func TestNavigate_ValidationErrorLeavesStack(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	params := subjectParams()
	delete(params, domain.ParamSubjectCode)

	_, err := coordinator.Navigate(domain.RouteSubjectHome, params, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin)
}

func TestNavigateTo_ResolvesLink(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	route, err := coordinator.NavigateTo("subject_home/1/Chem/DI01000071?isDarkMode=true")
	if err != nil {
		t.Fatalf("NavigateTo returned error: %v", err)
	}
	if !route.Bool(domain.QueryDarkMode) {
		t.Fatalf("expected dark mode")
	}
	if !coordinator.Current().Equal(route) {
		t.Fatalf("expected %s on top, got %s", route, coordinator.Current())
	}

	if _, err := coordinator.NavigateTo("subject_home/1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPopBackStack_SingleEntryIsNoop(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	notified := 0
	coordinator.Subscribe(func([]domain.Route) { notified++ })

	if coordinator.PopBackStack() {
		t.Fatalf("expected pop on single entry to report false")
	}
	assertStack(t, coordinator, domain.RouteLogin)
	if notified != 0 {
		t.Fatalf("expected no notification, got %d", notified)
	}
}

func TestPopUpTo(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	if _, err := coordinator.Navigate(domain.RouteSignup, nil, nil); err != nil {
		t.Fatalf("navigate signup: %v", err)
	}
	if _, err := coordinator.Navigate(domain.RouteLogin, nil, nil, PopUpTo(domain.RouteSignup, true)); err != nil {
		t.Fatalf("navigate login: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin, domain.RouteLogin)

	coordinator = NewRouteCoordinator(zaptest.NewLogger(t))
	mustNavigate(t, coordinator, domain.RouteHome, nil)
	mustNavigate(t, coordinator, domain.RouteSubjectHome, subjectParams())
	mustNavigate(t, coordinator, domain.RouteMaterialList, materialParams())

	if _, err := coordinator.Navigate(domain.RouteSubjectHome, subjectParams(), nil, PopUpTo(domain.RouteHome, false)); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin, domain.RouteHome, domain.RouteSubjectHome)

	if _, err := coordinator.Navigate(domain.RouteHome, nil, nil, PopUpTo(domain.RouteSignup, true)); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin, domain.RouteHome, domain.RouteSubjectHome, domain.RouteHome)
}

func TestSingleTop(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	mustNavigate(t, coordinator, domain.RouteSubjectHome, subjectParams())
	if _, err := coordinator.Navigate(domain.RouteSubjectHome, subjectParams(), nil, SingleTop()); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin, domain.RouteSubjectHome)

	other := subjectParams()
	other[domain.ParamSubjectID] = "2"
	if _, err := coordinator.Navigate(domain.RouteSubjectHome, other, nil, SingleTop()); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin, domain.RouteSubjectHome, domain.RouteSubjectHome)
}

func TestHandleTransition_AuthenticatedFromLogin(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpLogin, From: domain.Loading{}, To: domain.Authenticated{Identity: domain.Identity{ID: "U1"}},
	})
	assertStack(t, coordinator, domain.RouteHome)
}

func TestHandleTransition_AuthenticatedFromSignupPrunesAuthScreens(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	mustNavigate(t, coordinator, domain.RouteSignup, nil)

	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpSignup, From: domain.Loading{}, To: domain.Authenticated{Identity: domain.Identity{ID: "U1"}},
	})
	assertStack(t, coordinator, domain.RouteHome)
	if coordinator.PopBackStack() {
		t.Fatalf("expected no screen behind home")
	}
}

func TestHandleTransition_AuthenticatedAwayFromAuthScreens(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	coordinator.Restore([]string{"home", "subject_home/1/Chem/DI01000071"})

	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpResume, From: domain.Idle{}, To: domain.Authenticated{Identity: domain.Identity{ID: "U1"}},
	})
	assertStack(t, coordinator, domain.RouteHome, domain.RouteSubjectHome)
}

func TestHandleTransition_UnauthenticatedPrunesHome(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpLogin, From: domain.Loading{}, To: domain.Authenticated{Identity: domain.Identity{ID: "U1"}},
	})
	mustNavigate(t, coordinator, domain.RouteSubjectHome, subjectParams())
	mustNavigate(t, coordinator, domain.RouteMaterialList, materialParams())

	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpSignout, From: domain.Authenticated{}, To: domain.Unauthenticated{},
	})
	assertStack(t, coordinator, domain.RouteLogin)

	coordinator.HandleTransition(domain.Transition{
		Op: domain.OpSignout, From: domain.Unauthenticated{}, To: domain.Unauthenticated{},
	})
	assertStack(t, coordinator, domain.RouteLogin)
}

func TestHandleTransition_UnauthenticatedLeavesSignup(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*testing.T, *RouteCoordinator)
		tr      domain.Transition
	}{
		{
			name: "signout from error on signup",
			prepare: func(t *testing.T, c *RouteCoordinator) {
				mustNavigate(t, c, domain.RouteSignup, nil)
			},
			tr: domain.Transition{Op: domain.OpSignout, From: domain.Error{Message: "email taken"}, To: domain.Unauthenticated{}},
		},
		{
			name: "failed resume over restored auth screens",
			prepare: func(t *testing.T, c *RouteCoordinator) {
				c.Restore([]string{"login", "signup"})
			},
			tr: domain.Transition{Op: domain.OpResume, From: domain.Idle{}, To: domain.Unauthenticated{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
			tt.prepare(t, coordinator)

			coordinator.HandleTransition(tt.tr)
			assertStack(t, coordinator, domain.RouteLogin)
			if coordinator.PopBackStack() {
				t.Fatalf("expected no screen behind login")
			}
		})
	}
}

func TestHandleTransition_IgnoresLoadingAndError(t *testing.T) {
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	coordinator.HandleTransition(domain.Transition{Op: domain.OpLogin, From: domain.Idle{}, To: domain.Loading{}})
	coordinator.HandleTransition(domain.Transition{Op: domain.OpLogin, From: domain.Loading{}, To: domain.Error{Message: "bad credentials"}})
	assertStack(t, coordinator, domain.RouteLogin)
}

func TestBind_FollowsSessionController(t *testing.T) {
	backend := &fakeIdentityBackend{verify: succeedWith("U1")}
	controller := newTestController(t, backend)
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t))
	unbind := coordinator.Bind(controller)
	t.Cleanup(unbind)
	rec := newTransitionRecorder(t, controller)

	if err := controller.Login("a@b.com", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	rec.waitFor(t, domain.StateAuthenticated)
	assertStack(t, coordinator, domain.RouteHome)

	mustNavigate(t, coordinator, domain.RouteMaterialList, materialParams())
	if err := controller.Signout(context.Background()); err != nil {
		t.Fatalf("Signout returned error: %v", err)
	}
	assertStack(t, coordinator, domain.RouteLogin)
}

func TestRestore(t *testing.T) {
	metrics := &fakeNavigationMetrics{}
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t)).WithMetrics(metrics)

	var observed [][]domain.Route
	coordinator.Subscribe(func(stack []domain.Route) { observed = append(observed, stack) })

	restored := coordinator.Restore([]string{
		"home",
		"subject_home/1/Engineering%20Chemistry/DI01000071",
		"material_list/1/Engineering%20Chemistry/POSTERS",
	})
	if restored != 2 {
		t.Fatalf("expected 2 restored entries, got %d", restored)
	}
	assertStack(t, coordinator, domain.RouteHome, domain.RouteSubjectHome)
	if len(observed) != 1 {
		t.Fatalf("expected one notification, got %d", len(observed))
	}
	if got := coordinator.Current().Param(domain.ParamSubjectName); got != "Engineering Chemistry" {
		t.Fatalf("unexpected subject name %q", got)
	}
	if metrics.depth != 2 {
		t.Fatalf("expected depth gauge 2, got %d", metrics.depth)
	}

	if coordinator.Restore([]string{"settings", ""}) != 0 {
		t.Fatalf("expected nothing restored")
	}
	assertStack(t, coordinator, domain.RouteHome, domain.RouteSubjectHome)
}

func TestNavigationMetrics(t *testing.T) {
	metrics := &fakeNavigationMetrics{}
	coordinator := NewRouteCoordinator(zaptest.NewLogger(t)).WithMetrics(metrics)
	mustNavigate(t, coordinator, domain.RouteSignup, nil)
	coordinator.PopBackStack()

	want := []string{"push:signup", "pop:signup"}
	if len(metrics.actions) != len(want) {
		t.Fatalf("expected actions %v, got %v", want, metrics.actions)
	}
	for i := range want {
		if metrics.actions[i] != want[i] {
			t.Fatalf("expected actions %v, got %v", want, metrics.actions)
		}
	}
	if metrics.depth != 1 {
		t.Fatalf("expected depth 1, got %d", metrics.depth)
	}
}

func mustNavigate(t *testing.T, coordinator *RouteCoordinator, name domain.RouteName, params map[string]string) {
	t.Helper()
	if _, err := coordinator.Navigate(name, params, nil); err != nil {
		t.Fatalf("navigate %s: %v", name, err)
	}
}
