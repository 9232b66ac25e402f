package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishSessionEvent logs studynest.session.<kind> events.
func (p *StubPublisher) PublishSessionEvent(_ context.Context, event domain.SessionEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_type", SessionEventType(event.Kind)),
		zap.String("event_id", event.EventID),
		zap.String("method", string(event.Method)),
		zap.String("user_id", event.UserID),
		zap.String("device_id", event.DeviceID),
		zap.Uint64("seq", event.Seq),
		zap.Time("timestamp", at.UTC()),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	p.logger.Info("Stub event published", fields...)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
