// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/presales-assistant/internal/middleware"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	// The body is optional.
	var req model.CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateCreateSession(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Create(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// List handles GET /api/v1/sessions?q=&limit=&offset=
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	resp, err := h.service.List(r.Context(), r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Update handles PUT /api/v1/sessions/{sessionID}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateUpdateSession(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.service.Rename(r.Context(), chi.URLParam(r, "sessionID"), req.Title)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Delete handles DELETE /api/v1/sessions/{sessionID}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
