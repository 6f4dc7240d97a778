package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/middleware"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/orchestrator"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
	"github.com/capitalize-ai/presales-assistant/pkg/metrics"
)

const defaultHeartbeat = 15 * time.Second

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	service   *service.SessionService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.SessionService, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &StreamHandler{
		service:   svc,
		logger:    log,
		heartbeat: heartbeat,
	}
}

// Stream handles GET /api/v1/sessions/{sessionID}/turns/{turnID}/stream
// It replays the current state, then follows the turn until it finishes.
// Disconnecting does not affect the turn.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	turn, err := h.service.Turn(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "turnID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.follow(w, r, turn, false)
}

// StartAndStream handles POST /api/v1/sessions/{sessionID}/turns/stream
// It starts a turn and streams it; the turn is cancelled if the client goes away.
func (h *StreamHandler) StartAndStream(w http.ResponseWriter, r *http.Request) {
	var req model.StartTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateStartTurn(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	turn, err := h.service.StartTurn(r.Context(), chi.URLParam(r, "sessionID"), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.follow(w, r, turn, true)
}

// follow writes turn snapshots as SSE events until the turn finishes or the
// client disconnects.
func (h *StreamHandler) follow(w http.ResponseWriter, r *http.Request, turn *orchestrator.Handle, cancelOnDisconnect bool) {
	ctx := r.Context()
	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), chi.URLParam(r, "sessionID")).
		With(zap.String("turn_id", turn.ID()))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	box := newMailbox()
	unsubscribe := turn.Subscribe(box.put)
	defer unsubscribe()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			if cancelOnDisconnect {
				turn.Cancel()
			}
			log.Info("SSE client disconnected", zap.Bool("cancelled_turn", cancelOnDisconnect))
			return

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				log.Info("SSE heartbeat failed, closing stream", zap.Error(err))
				return
			}

		case <-box.ready:
			snap, ok := box.take()
			if !ok {
				continue
			}
			if err := sendSSEEvent(w, flusher, "turn", &model.TurnSnapshotEvent{
				Turn:         snap,
				RevealedText: snap.RevealedText(),
			}); err != nil {
				log.Warn("failed to write SSE event", zap.Error(err))
				sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
					Code:    "stream_error",
					Message: "failed to encode turn",
				})
				return
			}

			if snap.Finished() {
				sendSSEEvent(w, flusher, "done", &model.TurnDoneEvent{
					TurnID:    snap.ID,
					Phase:     snap.Phase,
					Cancelled: snap.Cancelled,
				})
				return
			}
		}
	}
}

// mailbox holds the newest undelivered snapshot. Listeners never block on it;
// a slow client skips intermediate snapshots.
type mailbox struct {
	mu      sync.Mutex
	latest  model.Turn
	pending bool
	ready   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) put(t model.Turn) {
	m.mu.Lock()
	m.latest = t
	m.pending = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// take returns the pending snapshot. ok is false when it was already taken
// under an earlier ready signal.
func (m *mailbox) take() (t model.Turn, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return model.Turn{}, false
	}
	m.pending = false
	return m.latest, true
}
