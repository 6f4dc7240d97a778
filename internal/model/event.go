package model

import (
	"time"
)

// EventType represents the type of turn lifecycle event.
type EventType string

const (
	EventTypeStarted   EventType = "started"
	EventTypePhase     EventType = "phase"
	EventTypeCompleted EventType = "completed"
	EventTypeCancelled EventType = "cancelled"
)

// TurnEvent is published on every turn phase transition.
type TurnEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Type      EventType `json:"type"`
	Phase     Phase     `json:"phase"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationKind classifies a user-facing toast.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationInfo    NotificationKind = "info"
	NotificationWarning NotificationKind = "warning"
	NotificationError   NotificationKind = "error"
)

// Notification is a fire-and-forget toast message.
type Notification struct {
	Message     string           `json:"message"`
	Kind        NotificationKind `json:"kind"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
