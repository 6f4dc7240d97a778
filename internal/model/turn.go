// Package model defines data structures for the pre-sales assistant service.
package model

import (
	"time"
)

// Phase is the lifecycle stage of a turn.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRetrieving Phase = "retrieving"
	PhaseReasoning  Phase = "reasoning"
	PhaseAnswering  Phase = "answering"
	PhaseDone       Phase = "done"
)

// Retrieval is the simulated knowledge-base scan progress of a turn.
type Retrieval struct {
	SourcesTotal    int    `json:"sources_total"`
	SourcesScanned  int    `json:"sources_scanned"`
	MatchesFound    int    `json:"matches_found"`
	CurrentLabel    string `json:"current_label"`
	ProgressPercent int    `json:"progress_percent"`
}

// Citation is a reference attached to an answer.
type Citation struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Snippet    string `json:"snippet"`
	PageNumber *int   `json:"page_number,omitempty"`
}

// AssistantSuggestion recommends handing off to a specialised assistant.
type AssistantSuggestion struct {
	AssistantID string  `json:"assistant_id"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// Answer is a pre-authored response bundle.
type Answer struct {
	Category    string                `json:"category"`
	FullText    string                `json:"full_text"`
	Citations   []Citation            `json:"citations"`
	Suggestions []AssistantSuggestion `json:"suggestions"`
}

// Clone returns a deep copy of the answer.
func (a Answer) Clone() Answer {
	out := a
	out.Citations = make([]Citation, len(a.Citations))
	for i, c := range a.Citations {
		if c.PageNumber != nil {
			page := *c.PageNumber
			c.PageNumber = &page
		}
		out.Citations[i] = c
	}
	out.Suggestions = append([]AssistantSuggestion(nil), a.Suggestions...)
	if out.Suggestions == nil {
		out.Suggestions = []AssistantSuggestion{}
	}
	return out
}

// Citation looks up a citation by ID.
func (a Answer) Citation(id string) (Citation, bool) {
	for _, c := range a.Citations {
		if c.ID == id {
			return c, true
		}
	}
	return Citation{}, false
}

// Turn is one question/answer exchange and its in-flight state.
type Turn struct {
	// Identity
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`

	// Input
	Question      string `json:"question"`
	DeepReasoning bool   `json:"deep_reasoning"`

	// State
	Phase          Phase     `json:"phase"`
	Retrieval      Retrieval `json:"retrieval"`
	ReasoningSteps []string  `json:"reasoning_steps"`
	Answer         *Answer   `json:"answer,omitempty"`
	RevealedLength int       `json:"revealed_length"`
	Cancelled      bool      `json:"cancelled,omitempty"`

	// Timestamps
	StartedAt        time.Time  `json:"started_at"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	ThinkingDuration float64    `json:"thinking_duration,omitempty"`
}

// Finished reports whether the turn will receive no further updates.
func (t *Turn) Finished() bool {
	return t.Phase == PhaseDone || t.Cancelled
}

// AnswerLength returns the answer length in runes, or 0 before an answer is attached.
func (t *Turn) AnswerLength() int {
	if t.Answer == nil {
		return 0
	}
	return len([]rune(t.Answer.FullText))
}

// RevealedText returns the part of the answer disclosed so far.
func (t *Turn) RevealedText() string {
	if t.Answer == nil || t.RevealedLength == 0 {
		return ""
	}
	runes := []rune(t.Answer.FullText)
	if t.RevealedLength >= len(runes) {
		return t.Answer.FullText
	}
	return string(runes[:t.RevealedLength])
}

// Clone returns a deep copy safe to hand to observers.
func (t *Turn) Clone() Turn {
	out := *t
	out.ReasoningSteps = append([]string{}, t.ReasoningSteps...)
	if t.Answer != nil {
		a := t.Answer.Clone()
		out.Answer = &a
	}
	if t.AnsweredAt != nil {
		ts := *t.AnsweredAt
		out.AnsweredAt = &ts
	}
	if t.FinishedAt != nil {
		ts := *t.FinishedAt
		out.FinishedAt = &ts
	}
	return out
}

// StartTurnRequest is the request to start a new turn.
type StartTurnRequest struct {
	Question       string   `json:"question"`
	DeepReasoning  bool     `json:"deep_reasoning"`
	KnowledgeBases []string `json:"knowledge_bases,omitempty"`
}

// TurnSnapshotEvent is the SSE payload carrying the current turn state.
type TurnSnapshotEvent struct {
	Turn         Turn   `json:"turn"`
	RevealedText string `json:"revealed_text"`
}

// ListTurnsResponse is the response for a session's turn history.
type ListTurnsResponse struct {
	Turns        []Turn `json:"turns"`
	ActiveTurnID string `json:"active_turn_id,omitempty"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// TurnDoneEvent is the last event of a turn stream.
type TurnDoneEvent struct {
	TurnID    string `json:"turn_id"`
	Phase     Phase  `json:"phase"`
	Cancelled bool   `json:"cancelled"`
}

// CancelTurnResponse reports the outcome of a cancel request.
type CancelTurnResponse struct {
	Cancelled bool   `json:"cancelled"`
	TurnID    string `json:"turn_id,omitempty"`
}
