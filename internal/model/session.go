package model

import (
	"time"
)

// Session is a chat session holding a history of turns.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	TurnCount    int       `json:"turn_count"`
	ActiveTurnID string    `json:"active_turn_id,omitempty"`
}

// CreateSessionRequest is the request to create a new session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// UpdateSessionRequest is the request to rename a session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// ListSessionsResponse is the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
}
