package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/middleware"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/notify"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// TurnHandler handles turn endpoints.
type TurnHandler struct {
	service  *service.SessionService
	notifier notify.Sink
	logger   *logger.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(svc *service.SessionService, notifier notify.Sink, log *logger.Logger) *TurnHandler {
	return &TurnHandler{
		service:  svc,
		notifier: notifier,
		logger:   log,
	}
}

// History handles GET /api/v1/sessions/{sessionID}/turns
func (h *TurnHandler) History(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Clear handles DELETE /api/v1/sessions/{sessionID}/turns
func (h *TurnHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.notifier.Notify(r.Context(), "对话已清空", model.NotificationSuccess, "")
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /api/v1/sessions/{sessionID}/turns
// The turn runs in the background; poll or stream it by ID.
func (h *TurnHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req model.StartTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateStartTurn(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := h.service.StartTurn(r.Context(), sessionID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	snap := turn.Snapshot()
	w.Header().Set("Location", r.URL.Path+"/"+turn.ID())
	writeJSON(w, http.StatusAccepted, &model.TurnSnapshotEvent{
		Turn:         snap,
		RevealedText: snap.RevealedText(),
	})
}

// Get handles GET /api/v1/sessions/{sessionID}/turns/{turnID}
func (h *TurnHandler) Get(w http.ResponseWriter, r *http.Request) {
	turn, err := h.service.Turn(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "turnID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	snap := turn.Snapshot()
	writeJSON(w, http.StatusOK, &model.TurnSnapshotEvent{
		Turn:         snap,
		RevealedText: snap.RevealedText(),
	})
}

// CancelActive handles DELETE /api/v1/sessions/{sessionID}/turns/active
func (h *TurnHandler) CancelActive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	active, err := h.service.Active(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := &model.CancelTurnResponse{}
	if active != nil && !active.Finished() {
		active.Cancel()
		resp.Cancelled = true
		resp.TurnID = active.ID()
		h.notifier.Notify(r.Context(), "已停止生成", model.NotificationInfo, "")
	}

	writeJSON(w, http.StatusOK, resp)
}

// Citation handles GET /api/v1/sessions/{sessionID}/turns/{turnID}/citations/{citationID}
// With ?copy=true the preview is also announced as copied.
func (h *TurnHandler) Citation(w http.ResponseWriter, r *http.Request) {
	turn, err := h.service.Turn(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "turnID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	snap := turn.Snapshot()
	if snap.Answer == nil {
		writeError(w, http.StatusNotFound, "citation not found")
		return
	}
	citation, ok := snap.Answer.Citation(chi.URLParam(r, "citationID"))
	if !ok {
		writeError(w, http.StatusNotFound, "citation not found")
		return
	}

	if copied, _ := strconv.ParseBool(r.URL.Query().Get("copy")); copied {
		h.logger.Debug("citation copied", zap.String("citation_id", citation.ID))
		h.notifier.Notify(r.Context(), "已复制到剪贴板", model.NotificationSuccess, citation.Title)
	}

	writeJSON(w, http.StatusOK, &model.CitationPreview{
		Citation: citation,
		Content:  catalog.CitationPreview(citation),
	})
}
