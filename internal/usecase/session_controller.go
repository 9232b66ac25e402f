package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/logger"
)

const (
	defaultBackendTimeout = 30 * time.Second
	staleDrainTimeout     = 5 * time.Second
	tracerName            = "github.com/Maryam-Bagia/StudyNest/internal/usecase"
)

// TransitionSource is anything that reports session transitions to subscribers.
type TransitionSource interface {
	Subscribe(fn func(domain.Transition)) (unsubscribe func())
}

type transitionListener struct {
	id uint64
	fn func(domain.Transition)
}

type backendResult struct {
	identity domain.Identity
	err      error
}

type backendCall func(ctx context.Context) (domain.Identity, error)

// SessionController owns the authentication state and runs login, signup,
// signout and resume against the identity backend.
//
// Every login/signup call is tagged with a generation number. Signout and any
// newer call advance the generation, so a response that arrives for an older
// generation is discarded instead of overwriting the current state.
type SessionController struct {
	backend port.IdentityBackend
	resumer port.SessionResumer
	logger  *zap.Logger
	metrics port.SessionMetrics
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time

	generation atomic.Uint64

	// emitMu serializes commits together with their notifications so
	// subscribers observe transitions in production order.
	emitMu sync.Mutex

	mu           sync.Mutex
	state        domain.SessionState
	seq          uint64
	cancel       context.CancelFunc
	listeners    []transitionListener
	nextListener uint64

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewSessionController constructs a controller in the Idle state.
func NewSessionController(backend port.IdentityBackend, log *zap.Logger) *SessionController {
	if log == nil {
		log = zap.NewNop()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	controller := &SessionController{
		backend: backend,
		logger:  log,
		tracer:  otel.Tracer(tracerName),
		timeout: defaultBackendTimeout,
		state:   domain.Idle{},
		baseCtx: baseCtx,
		stop:    stop,
	}
	if resumer, ok := backend.(port.SessionResumer); ok {
		controller.resumer = resumer
	}
	controller.now = func() time.Time { return time.Now().UTC() }
	return controller
}

// WithMetrics attaches telemetry hooks.
func (c *SessionController) WithMetrics(metrics port.SessionMetrics) *SessionController {
	c.metrics = metrics
	return c
}

// WithTimeout bounds every backend call. Non-positive values keep the default.
func (c *SessionController) WithTimeout(timeout time.Duration) *SessionController {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithTracer overrides the tracer used for backend call spans.
func (c *SessionController) WithTracer(tracer trace.Tracer) *SessionController {
	if tracer != nil {
		c.tracer = tracer
	}
	return c
}

// WithResumer overrides the resumer detected from the backend.
func (c *SessionController) WithResumer(resumer port.SessionResumer) *SessionController {
	c.resumer = resumer
	return c
}

// WithClock overrides the internal clock for deterministic tests.
func (c *SessionController) WithClock(clock func() time.Time) *SessionController {
	if clock != nil {
		c.now = clock
	}
	return c
}

// State returns the current session state.
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every subsequent transition. Callbacks run
// synchronously, one transition at a time, and must not call Login, Signup,
// Signout or Resume.
func (c *SessionController) Subscribe(fn func(domain.Transition)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, transitionListener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Login verifies the credentials asynchronously. The state moves to Loading
// before Login returns and later resolves to Authenticated or Error.
// Calls made while Loading or Authenticated are refused with domain.ErrInvalidState.
func (c *SessionController) Login(identifier, credential string) error {
	return c.start(domain.OpLogin, identifier, func(ctx context.Context) (domain.Identity, error) {
		return c.backend.VerifyCredentials(ctx, identifier, credential)
	})
}

// Signup creates the account asynchronously and signs it in on success.
func (c *SessionController) Signup(identifier, credential string) error {
	return c.start(domain.OpSignup, identifier, func(ctx context.Context) (domain.Identity, error) {
		return c.backend.CreateAccount(ctx, identifier, credential)
	})
}

func (c *SessionController) start(op domain.Operation, identifier string, call backendCall) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if err := domain.CheckTransition(c.state, op); err != nil {
		c.mu.Unlock()
		c.logger.Debug("session operation refused",
			zap.String("op", string(op)),
			zap.Stringer("state", c.State().Kind()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	token := c.generation.Inc()
	ctx, cancel := context.WithTimeout(c.baseCtx, c.timeout)
	c.cancel = cancel
	tr, listeners := c.commitLocked(op, domain.Loading{})
	c.mu.Unlock()

	c.logger.Info("session operation started",
		zap.String("op", string(op)),
		zap.String("identifier", logger.MaskEmail(identifier)),
		zap.Uint64("generation", token),
	)
	c.notify(listeners, tr)

	c.wg.Add(1)
	go c.await(ctx, cancel, token, op, call)
	return nil
}

func (c *SessionController) await(ctx context.Context, cancel context.CancelFunc, token uint64, op domain.Operation, call backendCall) {
	defer c.wg.Done()
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "session."+string(op),
		trace.WithAttributes(attribute.Int64("session.generation", int64(token))),
	)
	defer span.End()

	started := time.Now()
	results := make(chan backendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- backendResult{err: &domain.BackendError{Op: op, Message: fmt.Sprintf("identity backend failed: %v", r)}}
			}
		}()
		identity, err := call(ctx)
		results <- backendResult{identity: identity, err: err}
	}()

	var res backendResult
	pending := results
	select {
	case res = <-results:
		pending = nil
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && res.identity.IsZero() {
		res.err = &domain.BackendError{Op: op, Message: "identity backend returned no identity"}
	}

	var next domain.SessionState
	outcome := "success"
	if res.err != nil {
		outcome = "failure"
		message := failureMessage(res.err)
		if message == "timeout" {
			outcome = "timeout"
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, message)
		next = domain.Error{Message: message}
	} else {
		next = domain.Authenticated{Identity: res.identity}
	}
	if c.metrics != nil {
		c.metrics.ObserveBackendCall(op, outcome, time.Since(started))
	}

	if !c.resolve(token, op, next) {
		span.SetAttributes(attribute.Bool("session.stale", true))
		c.discardStale(op, res, pending)
		return
	}
	if res.err != nil {
		c.logger.Warn("session operation failed",
			zap.String("op", string(op)),
			zap.Error(res.err),
		)
	}
}

// resolve commits next unless a newer generation has started since token was issued.
func (c *SessionController) resolve(token uint64, op domain.Operation, next domain.SessionState) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.generation.Load() != token {
		c.mu.Unlock()
		c.logger.Info("discarding stale identity backend response",
			zap.String("op", string(op)),
			zap.Uint64("generation", token),
			zap.Stringer("resolved", next.Kind()),
		)
		if c.metrics != nil {
			c.metrics.IncStaleResponse(op)
		}
		return false
	}
	c.cancel = nil
	tr, listeners := c.commitLocked(op, next)
	c.mu.Unlock()

	c.notify(listeners, tr)
	return true
}

// discardStale forgets the session a discarded login or signup may have left
// behind. When pending is set the backend call has not returned yet and its
// result is awaited first.
func (c *SessionController) discardStale(op domain.Operation, res backendResult, pending <-chan backendResult) {
	if pending != nil {
		timer := time.NewTimer(staleDrainTimeout)
		defer timer.Stop()
		select {
		case res = <-pending:
		case <-timer.C:
			c.logger.Warn("identity backend ignored cancellation", zap.String("op", string(op)))
			return
		}
	}
	if res.err != nil || res.identity.IsZero() || c.backend == nil {
		return
	}

	// emitMu keeps a new login from remembering a session while this one is cleared.
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	switch c.State().Kind() {
	case domain.StateLoading, domain.StateAuthenticated:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.backend.ClearSession(ctx); err != nil {
		c.logger.Warn("clear discarded session failed",
			zap.String("op", string(op)),
			zap.String("user_id", res.identity.ID),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("cleared discarded session",
		zap.String("op", string(op)),
		zap.String("user_id", res.identity.ID),
	)
}

// Signout clears the backend session and moves to Unauthenticated. Any
// in-flight login or signup is canceled and its eventual response discarded.
// Calling Signout while already Unauthenticated changes nothing.
func (c *SessionController) Signout(ctx context.Context) error {
	c.emitMu.Lock()
	c.mu.Lock()
	if c.state.Kind() == domain.StateUnauthenticated {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return nil
	}
	c.generation.Inc()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	tr, listeners := c.commitLocked(domain.OpSignout, domain.Unauthenticated{})
	c.mu.Unlock()
	c.notify(listeners, tr)
	c.emitMu.Unlock()

	if c.backend == nil {
		return nil
	}
	if err := c.backend.ClearSession(ctx); err != nil {
		c.logger.Warn("clear backend session failed", zap.Error(err))
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Resume checks for a remembered session. It is only defined from Idle and
// resolves to Authenticated or Unauthenticated. domain.ErrNoSession is not
// reported as an error; any other lookup failure is returned after the state
// has moved to Unauthenticated.
func (c *SessionController) Resume(ctx context.Context) error {
	c.emitMu.Lock()
	c.mu.Lock()
	if err := domain.CheckTransition(c.state, domain.OpResume); err != nil {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return fmt.Errorf("%s: %w", domain.OpResume, err)
	}
	token := c.generation.Inc()
	c.mu.Unlock()
	c.emitMu.Unlock()

	if c.resumer == nil {
		c.resolve(token, domain.OpResume, domain.Unauthenticated{})
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "session."+string(domain.OpResume))
	defer span.End()

	started := time.Now()
	identity, err := c.resumer.CurrentIdentity(ctx)
	if err == nil && identity.IsZero() {
		err = domain.ErrNoSession
	}
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.ObserveBackendCall(domain.OpResume, outcome, time.Since(started))
	}

	if err != nil {
		c.resolve(token, domain.OpResume, domain.Unauthenticated{})
		if errors.Is(err, domain.ErrNoSession) {
			c.logger.Info("no remembered session to resume")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("resume session failed", zap.Error(err))
		return fmt.Errorf("resume session: %w", err)
	}

	if c.resolve(token, domain.OpResume, domain.Authenticated{Identity: identity}) {
		c.logger.Info("session resumed", zap.String("user_id", identity.ID))
	}
	return nil
}

// Shutdown cancels in-flight backend calls and waits for them to finish.
// Their responses are discarded, so no transition follows Shutdown.
func (c *SessionController) Shutdown() {
	c.emitMu.Lock()
	c.mu.Lock()
	c.generation.Inc()
	c.cancel = nil
	c.mu.Unlock()
	c.emitMu.Unlock()

	c.stop()
	c.wg.Wait()
}

func (c *SessionController) commitLocked(op domain.Operation, next domain.SessionState) (domain.Transition, []transitionListener) {
	from := c.state
	c.state = next
	c.seq++
	tr := domain.Transition{
		Seq:  c.seq,
		Op:   op,
		From: from,
		To:   next,
		At:   c.now(),
	}
	listeners := make([]transitionListener, len(c.listeners))
	copy(listeners, c.listeners)

	c.logger.Debug("session transition",
		zap.String("op", string(op)),
		zap.Stringer("from", from.Kind()),
		zap.Stringer("to", next.Kind()),
		zap.Uint64("seq", tr.Seq),
	)
	if c.metrics != nil {
		c.metrics.ObserveTransition(op, next.Kind())
	}
	return tr, listeners
}

func (c *SessionController) notify(listeners []transitionListener, tr domain.Transition) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("session listener panicked",
						zap.Any("panic", r),
						zap.Uint64("seq", tr.Seq),
					)
				}
			}()
			l.fn(tr)
		}()
	}
}

func failureMessage(err error) string {
	var backendErr *domain.BackendError
	switch {
	case errors.As(err, &backendErr) && backendErr.Message != "":
		return backendErr.Message
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}
