// Package notify delivers short user-facing notifications.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// Sink accepts notifications. Notify never blocks on delivery and never fails.
type Sink interface {
	Notify(ctx context.Context, message string, kind model.NotificationKind, description string)
}

// Publisher sends notifications to a broker.
type Publisher interface {
	PublishNotification(ctx context.Context, n *model.Notification) error
}

// LogSink writes notifications to the log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink that logs through log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.Named("notify")}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, message string, kind model.NotificationKind, description string) {
	fields := []zap.Field{zap.String("kind", string(kind))}
	if description != "" {
		fields = append(fields, zap.String("description", description))
	}

	switch kind {
	case model.NotificationError:
		s.log.Error(message, fields...)
	case model.NotificationWarning:
		s.log.Warn(message, fields...)
	default:
		s.log.Info(message, fields...)
	}
}

// PublisherSink forwards notifications to a Publisher.
type PublisherSink struct {
	pub Publisher
	log *logger.Logger
	now func() time.Time
}

// NewPublisherSink creates a sink backed by pub. Publish failures are logged.
func NewPublisherSink(pub Publisher, log *logger.Logger) *PublisherSink {
	return &PublisherSink{pub: pub, log: log, now: time.Now}
}

// Notify implements Sink.
func (s *PublisherSink) Notify(ctx context.Context, message string, kind model.NotificationKind, description string) {
	n := &model.Notification{
		Message:     message,
		Kind:        kind,
		Description: description,
		CreatedAt:   s.now(),
	}
	if err := s.pub.PublishNotification(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn("failed to publish notification", zap.Error(err), zap.String("kind", string(kind)))
	}
}

// Multi fans a notification out to every sink in order.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, message string, kind model.NotificationKind, description string) {
	for _, s := range m {
		s.Notify(ctx, message, kind, description)
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, string, model.NotificationKind, string) {}
