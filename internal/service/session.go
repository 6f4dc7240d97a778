// Package service provides business logic for the pre-sales assistant.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/orchestrator"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
	"github.com/capitalize-ai/presales-assistant/pkg/metrics"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTurnNotFound is returned for a turn ID not in the session's history.
	ErrTurnNotFound = errors.New("turn not found")
)

// titleRunes caps the title derived from a session's first question.
const titleRunes = 20

// OrchestratorFactory builds the orchestrator owning one session's turns.
type OrchestratorFactory func(sessionID string) *orchestrator.Orchestrator

type session struct {
	info  model.Session
	orch  *orchestrator.Orchestrator
	turns []*orchestrator.Handle
}

// SessionService manages chat sessions and their turn history.
type SessionService struct {
	newOrchestrator OrchestratorFactory
	logger          *logger.Logger
	now             func() time.Time

	// In-memory storage; sessions do not survive a restart.
	sessions map[string]*session
	mu       sync.RWMutex
}

// NewSessionService creates a new session service.
func NewSessionService(factory OrchestratorFactory, log *logger.Logger) *SessionService {
	return &SessionService{
		newOrchestrator: factory,
		logger:          log,
		now:             time.Now,
		sessions:        make(map[string]*session),
	}
}

// Create creates a new session. An empty title is filled from the first question.
func (s *SessionService) Create(ctx context.Context, title string) (*model.Session, error) {
	now := s.now()
	id := uuid.Must(uuid.NewV7()).String()

	sess := &session{
		info: model.Session{
			ID:        id,
			Title:     strings.TrimSpace(title),
			CreatedAt: now,
			UpdatedAt: now,
		},
		orch: s.newOrchestrator(id),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	metrics.SessionsTotal.Inc()
	s.logger.Info("session created", zap.String("session_id", id))

	info := sess.info
	return &info, nil
}

// Get retrieves a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	info := sess.snapshot()
	return &info, nil
}

// List returns sessions whose title contains query, most recently updated first.
func (s *SessionService) List(ctx context.Context, query string, limit, offset int) (*model.ListSessionsResponse, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	sessions := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if query != "" && !strings.Contains(strings.ToLower(sess.info.Title), query) {
			continue
		}
		sessions = append(sessions, sess.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	total := len(sessions)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListSessionsResponse{
		Sessions: sessions[start:end],
		Total:    total,
		HasMore:  end < total,
	}, nil
}

// Rename changes a session's title.
func (s *SessionService) Rename(ctx context.Context, sessionID, title string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.info.Title = strings.TrimSpace(title)
	sess.info.UpdatedAt = s.now()

	info := sess.snapshot()
	return &info, nil
}

// Delete removes a session, cancelling its active turn.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.orch.CancelActive()
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// StartTurn starts a turn in the session. It returns
// orchestrator.ErrInvalidInput or orchestrator.ErrBusy unchanged.
func (s *SessionService) StartTurn(ctx context.Context, sessionID string, req *model.StartTurnRequest) (*orchestrator.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	h, err := sess.orch.StartTurn(ctx, req.Question, orchestrator.TurnOptions{
		DeepReasoning:  req.DeepReasoning,
		KnowledgeBases: req.KnowledgeBases,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start turn: %w", err)
	}

	sess.turns = append(sess.turns, h)
	sess.info.UpdatedAt = s.now()
	if sess.info.Title == "" {
		sess.info.Title = truncateRunes(strings.TrimSpace(req.Question), titleRunes)
	}

	return h, nil
}

// CancelActive cancels the session's active turn and reports whether one was running.
func (s *SessionService) CancelActive(ctx context.Context, sessionID string) (bool, error) {
	orch, err := s.orchestrator(sessionID)
	if err != nil {
		return false, err
	}
	return orch.CancelActive(), nil
}

// Active returns the session's in-flight turn, or nil.
func (s *SessionService) Active(ctx context.Context, sessionID string) (*orchestrator.Handle, error) {
	orch, err := s.orchestrator(sessionID)
	if err != nil {
		return nil, err
	}
	return orch.Active(), nil
}

// Turn returns a turn from the session's history.
func (s *SessionService) Turn(ctx context.Context, sessionID, turnID string) (*orchestrator.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	for _, h := range sess.turns {
		if h.ID() == turnID {
			return h, nil
		}
	}
	return nil, ErrTurnNotFound
}

// History returns snapshots of every turn in the session, oldest first.
func (s *SessionService) History(ctx context.Context, sessionID string) (*model.ListTurnsResponse, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	var handles []*orchestrator.Handle
	if ok {
		handles = append(handles, sess.turns...)
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	resp := &model.ListTurnsResponse{Turns: make([]model.Turn, 0, len(handles))}
	for _, h := range handles {
		resp.Turns = append(resp.Turns, h.Snapshot())
	}
	if active := sess.orch.Active(); active != nil {
		resp.ActiveTurnID = active.ID()
	}
	return resp, nil
}

// Clear cancels the active turn and drops the session's history.
func (s *SessionService) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		sess.turns = nil
		sess.info.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.orch.CancelActive()
	s.logger.Info("session cleared", zap.String("session_id", sessionID))
	return nil
}

// Shutdown cancels every active turn.
func (s *SessionService) Shutdown() {
	s.mu.RLock()
	orchs := make([]*orchestrator.Orchestrator, 0, len(s.sessions))
	for _, sess := range s.sessions {
		orchs = append(orchs, sess.orch)
	}
	s.mu.RUnlock()

	for _, o := range orchs {
		o.CancelActive()
	}
}

func (s *SessionService) orchestrator(sessionID string) (*orchestrator.Orchestrator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.orch, nil
}

func (sess *session) snapshot() model.Session {
	info := sess.info
	info.TurnCount = len(sess.turns)
	if active := sess.orch.Active(); active != nil {
		info.ActiveTurnID = active.ID()
	}
	return info
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
