package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
)

const (
	defaultAuditBuffer       = 64
	defaultAuditDrainTimeout = 5 * time.Second
)

// SessionAudit turns session transitions into lifecycle events and publishes
// them in transition order on a single goroutine.
type SessionAudit struct {
	publisher port.EventPublisher
	deviceID  string
	logger    *zap.Logger
	queue     chan domain.SessionEvent
	newID     func() string
}

// NewSessionAudit constructs an audit observer with a bounded queue.
func NewSessionAudit(publisher port.EventPublisher, deviceID string, logger *zap.Logger) *SessionAudit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAudit{
		publisher: publisher,
		deviceID:  deviceID,
		logger:    logger,
		queue:     make(chan domain.SessionEvent, defaultAuditBuffer),
		newID:     func() string { return uuid.NewString() },
	}
}

// Observe queues the event for tr, if it has one. A full queue drops the event.
// It is meant to be registered with SessionController.Subscribe.
func (a *SessionAudit) Observe(tr domain.Transition) {
	event, ok := a.eventFor(tr)
	if !ok {
		return
	}
	select {
	case a.queue <- event:
	default:
		a.logger.Warn("session audit queue full, dropping event",
			zap.String("kind", string(event.Kind)),
			zap.Uint64("seq", event.Seq),
		)
	}
}

// Run publishes queued events until ctx is canceled, then drains the queue
// with a bounded deadline.
func (a *SessionAudit) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), defaultAuditDrainTimeout)
			defer cancel()
			for {
				select {
				case event := <-a.queue:
					a.publish(drainCtx, event)
				default:
					return nil
				}
			}
		case event := <-a.queue:
			a.publish(ctx, event)
		}
	}
}

func (a *SessionAudit) publish(ctx context.Context, event domain.SessionEvent) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishSessionEvent(ctx, event); err != nil {
		a.logger.Warn("publish session event failed",
			zap.String("kind", string(event.Kind)),
			zap.Uint64("seq", event.Seq),
			zap.Error(err),
		)
	}
}

func (a *SessionAudit) eventFor(tr domain.Transition) (domain.SessionEvent, bool) {
	event := domain.SessionEvent{
		EventID:    a.newID(),
		Method:     tr.Op,
		DeviceID:   a.deviceID,
		Seq:        tr.Seq,
		OccurredAt: tr.At,
	}

	switch to := tr.To.(type) {
	case domain.Authenticated:
		event.Kind = domain.SessionEventSignedIn
		event.UserID = to.Identity.ID
		if to.Identity.Username != "" {
			event.Metadata = map[string]any{"username": to.Identity.Username}
		}
	case domain.Unauthenticated:
		if tr.Op != domain.OpSignout {
			return domain.SessionEvent{}, false
		}
		event.Kind = domain.SessionEventSignedOut
		if from, ok := tr.From.(domain.Authenticated); ok {
			event.UserID = from.Identity.ID
		}
	case domain.Error:
		event.Kind = domain.SessionEventFailed
		event.Reason = to.Message
	default:
		return domain.SessionEvent{}, false
	}
	return event, true
}
