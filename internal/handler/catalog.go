package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/notify"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// CatalogHandler serves the assistant, knowledge-base and starter-question directories.
type CatalogHandler struct {
	answers  *catalog.Catalog
	notifier notify.Sink
	logger   *logger.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(answers *catalog.Catalog, notifier notify.Sink, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		answers:  answers,
		notifier: notifier,
		logger:   log,
	}
}

// Assistants handles GET /api/v1/assistants
func (h *CatalogHandler) Assistants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assistants": catalog.Assistants(),
	})
}

// AnswerCategories handles GET /api/v1/answer-categories
// Categories are listed in match priority order, fallback last.
func (h *CatalogHandler) AnswerCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": h.answers.Categories(),
	})
}

// LaunchAssistant handles POST /api/v1/assistants/{assistantID}/launch
func (h *CatalogHandler) LaunchAssistant(w http.ResponseWriter, r *http.Request) {
	assistant, ok := catalog.FindAssistant(chi.URLParam(r, "assistantID"))
	if !ok {
		writeError(w, http.StatusNotFound, "assistant not found")
		return
	}

	h.logger.Info("assistant launched", zap.String("assistant_id", assistant.ID))
	h.notifier.Notify(r.Context(), "已启动"+assistant.Name, model.NotificationSuccess, assistant.Description)

	writeJSON(w, http.StatusOK, assistant)
}

// KnowledgeBases handles GET /api/v1/knowledge-bases?scope=
func (h *CatalogHandler) KnowledgeBases(w http.ResponseWriter, r *http.Request) {
	scope := model.KnowledgeBaseScope(r.URL.Query().Get("scope"))
	switch scope {
	case "", model.ScopeEnterprise, model.ScopeDepartment, model.ScopePersonal:
	default:
		writeError(w, http.StatusBadRequest, "unknown scope")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"knowledge_bases": catalog.KnowledgeBases(scope),
	})
}

// SuggestedQuestions handles GET /api/v1/suggested-questions
func (h *CatalogHandler) SuggestedQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": catalog.SuggestedQuestions(),
	})
}
