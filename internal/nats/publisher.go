package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/pkg/metrics"
)

// SubjectPrefix is the prefix for all published subjects.
const SubjectPrefix = "presales"

const (
	kindTurnEvent    = "turn_event"
	kindNotification = "notification"
)

// Conn is the publishing side of a NATS connection.
type Conn interface {
	Publish(subject string, data []byte) error
}

// TurnEventSubject returns the subject for a turn lifecycle event.
func TurnEventSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.turn.%s", SubjectPrefix, sessionID, eventType)
}

// SessionFilter matches every turn event of a session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.turn.>", SubjectPrefix, sessionID)
}

// NotificationSubject returns the subject for a notification kind.
func NotificationSubject(kind model.NotificationKind) string {
	return fmt.Sprintf("%s.notify.%s", SubjectPrefix, kind)
}

// Publisher encodes events as JSON and publishes them on core NATS.
// A nil Conn turns every publish into a no-op.
type Publisher struct {
	conn Conn
}

// NewPublisher creates a publisher over conn.
func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn}
}

// PublishTurnEvent publishes a turn lifecycle event.
func (p *Publisher) PublishTurnEvent(ctx context.Context, event *model.TurnEvent) error {
	return p.publish(ctx, kindTurnEvent, TurnEventSubject(event.SessionID, event.Type), event)
}

// PublishNotification publishes a user-facing notification.
func (p *Publisher) PublishNotification(ctx context.Context, n *model.Notification) error {
	return p.publish(ctx, kindNotification, NotificationSubject(n.Kind), n)
}

func (p *Publisher) publish(ctx context.Context, kind, subject string, v any) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	if err := p.conn.Publish(subject, data); err != nil {
		metrics.EventsPublished.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to publish %s: %w", kind, err)
	}

	metrics.EventsPublished.WithLabelValues(kind, "ok").Inc()
	return nil
}
