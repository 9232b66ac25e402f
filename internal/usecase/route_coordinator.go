package usecase

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
)

// Navigation actions reported to metrics.
const (
	NavActionPush    = "push"
	NavActionPop     = "pop"
	NavActionForced  = "forced"
	NavActionRestore = "restore"
)

// NavOption adjusts a single navigation.
type NavOption func(*navOptions)

type navOptions struct {
	popUpTo   domain.RouteName
	inclusive bool
	singleTop bool
}

// PopUpTo removes every entry above the topmost entry named route before the
// push, and that entry too when inclusive is set. Nothing is popped when the
// route is not on the stack.
func PopUpTo(route domain.RouteName, inclusive bool) NavOption {
	return func(o *navOptions) {
		o.popUpTo = route
		o.inclusive = inclusive
	}
}

// SingleTop skips the push when the top entry already equals the new route.
func SingleTop() NavOption {
	return func(o *navOptions) {
		o.singleTop = true
	}
}

type stackListener struct {
	id uint64
	fn func([]domain.Route)
}

// RouteCoordinator owns the navigation back-stack. The last entry is the
// visible screen; the stack is never empty.
type RouteCoordinator struct {
	logger  *zap.Logger
	metrics port.NavigationMetrics

	emitMu sync.Mutex

	mu           sync.Mutex
	stack        []domain.Route
	listeners    []stackListener
	nextListener uint64
}

// NewRouteCoordinator constructs a coordinator whose stack holds only the login screen.
func NewRouteCoordinator(logger *zap.Logger) *RouteCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteCoordinator{
		logger: logger,
		stack:  []domain.Route{domain.MustRoute(domain.RouteLogin, nil, nil)},
	}
}

// WithMetrics attaches telemetry hooks.
func (r *RouteCoordinator) WithMetrics(metrics port.NavigationMetrics) *RouteCoordinator {
	r.metrics = metrics
	if metrics != nil {
		metrics.SetBackStackDepth(len(r.BackStack()))
	}
	return r
}

// Current returns the visible route.
func (r *RouteCoordinator) Current() domain.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stack[len(r.stack)-1]
}

// BackStack returns a copy of the stack, bottom first.
func (r *RouteCoordinator) BackStack() []domain.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneStack(r.stack)
}

// Subscribe registers fn for every change of the back-stack. Callbacks
// receive a copy of the new stack and must not navigate.
func (r *RouteCoordinator) Subscribe(fn func([]domain.Route)) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextListener++
	id := r.nextListener
	r.listeners = append(r.listeners, stackListener{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Navigate builds a route descriptor and pushes it. A missing or malformed
// parameter fails with a *domain.ValidationError and leaves the stack untouched.
func (r *RouteCoordinator) Navigate(name domain.RouteName, params, query map[string]string, opts ...NavOption) (domain.Route, error) {
	route, err := domain.NewRoute(name, params, query)
	if err != nil {
		return domain.Route{}, fmt.Errorf("navigate: %w", err)
	}
	r.Push(route, opts...)
	return route, nil
}

// NavigateTo resolves the string form of a route and pushes it.
func (r *RouteCoordinator) NavigateTo(link string, opts ...NavOption) (domain.Route, error) {
	route, err := domain.ParseRoute(link)
	if err != nil {
		return domain.Route{}, fmt.Errorf("navigate: %w", err)
	}
	r.Push(route, opts...)
	return route, nil
}

// Push places an already validated route on top of the stack.
func (r *RouteCoordinator) Push(route domain.Route, opts ...NavOption) {
	r.push(NavActionPush, route, opts...)
}

func (r *RouteCoordinator) push(action string, route domain.Route, opts ...NavOption) {
	var o navOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	next := cloneStack(r.stack)
	if o.popUpTo != "" {
		if idx := lastIndexOf(next, o.popUpTo); idx >= 0 {
			cut := idx + 1
			if o.inclusive {
				cut = idx
			}
			next = next[:cut]
		}
	}
	if !(o.singleTop && len(next) > 0 && next[len(next)-1].Equal(route)) {
		next = append(next, route)
	}
	changed := !sameStack(r.stack, next)
	if changed {
		r.stack = next
	}
	snapshot, listeners := cloneStack(r.stack), r.snapshotListenersLocked()
	r.mu.Unlock()

	if !changed {
		return
	}
	r.logger.Debug("navigate",
		zap.String("action", action),
		zap.String("route", route.String()),
		zap.Int("depth", len(snapshot)),
	)
	r.observe(action, route.Name, len(snapshot))
	r.notify(listeners, snapshot)
}

// PopBackStack removes the visible route. With a single entry on the stack it
// does nothing and returns false.
func (r *RouteCoordinator) PopBackStack() bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if len(r.stack) <= 1 {
		r.mu.Unlock()
		return false
	}
	popped := r.stack[len(r.stack)-1]
	r.stack = cloneStack(r.stack[:len(r.stack)-1])
	snapshot, listeners := cloneStack(r.stack), r.snapshotListenersLocked()
	r.mu.Unlock()

	r.logger.Debug("pop back stack",
		zap.String("route", popped.String()),
		zap.Int("depth", len(snapshot)),
	)
	r.observe(NavActionPop, popped.Name, len(snapshot))
	r.notify(listeners, snapshot)
	return true
}

// Restore replaces the stack with previously persisted entries, bottom first.
// Entries that no longer parse are dropped. When nothing valid remains the
// current stack is kept. It returns the number of restored entries.
func (r *RouteCoordinator) Restore(entries []string) int {
	restored := make([]domain.Route, 0, len(entries))
	for _, entry := range entries {
		route, err := domain.ParseRoute(entry)
		if err != nil {
			r.logger.Warn("dropping persisted route", zap.String("route", entry), zap.Error(err))
			continue
		}
		restored = append(restored, route)
	}
	if len(restored) == 0 {
		return 0
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	r.stack = restored
	snapshot, listeners := cloneStack(r.stack), r.snapshotListenersLocked()
	r.mu.Unlock()

	top := snapshot[len(snapshot)-1]
	r.logger.Info("back stack restored",
		zap.Int("depth", len(snapshot)),
		zap.String("current", top.String()),
	)
	r.observe(NavActionRestore, top.Name, len(snapshot))
	r.notify(listeners, snapshot)
	return len(restored)
}

// HandleTransition applies the navigation forced by a session change:
//   - Unauthenticated discards home and everything above it, then the auth
//     screens left on top, and shows the login screen.
//   - Authenticated while an auth screen is visible discards the auth screens and shows home.
func (r *RouteCoordinator) HandleTransition(tr domain.Transition) {
	switch to := tr.To.(type) {
	case domain.Unauthenticated:
		r.enterLogin()
	case domain.Authenticated:
		if r.enterHome() {
			r.logger.Debug("left auth screens", zap.String("user_id", to.Identity.ID))
		}
	}
}

// enterLogin leaves the signed-in screens and any auth screens for a single login screen.
func (r *RouteCoordinator) enterLogin() {
	login := domain.MustRoute(domain.RouteLogin, nil, nil)

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	next := cloneStack(r.stack)
	if idx := lastIndexOf(next, domain.RouteHome); idx >= 0 {
		next = next[:idx]
	}
	for len(next) > 0 && next[len(next)-1].Name.IsAuthScreen() {
		next = next[:len(next)-1]
	}
	next = append(next, login)
	if sameStack(r.stack, next) {
		r.mu.Unlock()
		return
	}
	r.stack = next
	snapshot, listeners := cloneStack(r.stack), r.snapshotListenersLocked()
	r.mu.Unlock()

	r.logger.Debug("navigate",
		zap.String("action", NavActionForced),
		zap.String("route", login.String()),
		zap.Int("depth", len(snapshot)),
	)
	r.observe(NavActionForced, login.Name, len(snapshot))
	r.notify(listeners, snapshot)
}

// enterHome replaces the auth screens on top of the stack with home. It does
// nothing unless an auth screen is visible.
func (r *RouteCoordinator) enterHome() bool {
	home := domain.MustRoute(domain.RouteHome, nil, nil)

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if !r.stack[len(r.stack)-1].Name.IsAuthScreen() {
		r.mu.Unlock()
		return false
	}
	next := cloneStack(r.stack)
	for len(next) > 0 && next[len(next)-1].Name.IsAuthScreen() {
		next = next[:len(next)-1]
	}
	if len(next) == 0 || !next[len(next)-1].Equal(home) {
		next = append(next, home)
	}
	r.stack = next
	snapshot, listeners := cloneStack(r.stack), r.snapshotListenersLocked()
	r.mu.Unlock()

	r.logger.Debug("navigate",
		zap.String("action", NavActionForced),
		zap.String("route", home.String()),
		zap.Int("depth", len(snapshot)),
	)
	r.observe(NavActionForced, home.Name, len(snapshot))
	r.notify(listeners, snapshot)
	return true
}

// Bind subscribes the coordinator to session transitions.
func (r *RouteCoordinator) Bind(source TransitionSource) func() {
	return source.Subscribe(r.HandleTransition)
}

func (r *RouteCoordinator) snapshotListenersLocked() []stackListener {
	listeners := make([]stackListener, len(r.listeners))
	copy(listeners, r.listeners)
	return listeners
}

func (r *RouteCoordinator) observe(action string, route domain.RouteName, depth int) {
	if r.metrics == nil {
		return
	}
	r.metrics.IncNavigation(action, route)
	r.metrics.SetBackStackDepth(depth)
}

func (r *RouteCoordinator) notify(listeners []stackListener, snapshot []domain.Route) {
	for _, l := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("back stack listener panicked", zap.Any("panic", rec))
				}
			}()
			l.fn(cloneStack(snapshot))
		}()
	}
}

func cloneStack(stack []domain.Route) []domain.Route {
	out := make([]domain.Route, len(stack))
	copy(out, stack)
	return out
}

func lastIndexOf(stack []domain.Route, name domain.RouteName) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].Name == name {
			return i
		}
	}
	return -1
}

func sameStack(a, b []domain.Route) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// EncodeBackStack renders a stack in its persisted string form.
func EncodeBackStack(stack []domain.Route) []string {
	out := make([]string, len(stack))
	for i, route := range stack {
		out[i] = route.String()
	}
	return out
}
