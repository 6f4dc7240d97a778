package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/middleware"
	"github.com/capitalize-ai/presales-assistant/internal/notify"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// RouterConfig wires the API routes.
type RouterConfig struct {
	Sessions *service.SessionService
	// Answers defaults to catalog.Default().
	Answers  *catalog.Catalog
	Notifier notify.Sink
	// NATS is nil when event publishing is disabled.
	NATS   ConnectionChecker
	Logger *logger.Logger

	CORSAllowedOrigins    []string
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	TurnRateLimitRequests int
	SSEHeartbeatInterval  time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	answers := cfg.Answers
	if answers == nil {
		answers = catalog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	healthHandler := NewHealthHandler(cfg.NATS)
	catalogHandler := NewCatalogHandler(answers, notifier, cfg.Logger)
	sessionHandler := NewSessionHandler(cfg.Sessions, cfg.Logger)
	turnHandler := NewTurnHandler(cfg.Sessions, notifier, cfg.Logger)
	streamHandler := NewStreamHandler(cfg.Sessions, cfg.SSEHeartbeatInterval, cfg.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		// Directories
		r.Get("/assistants", catalogHandler.Assistants)
		r.Post("/assistants/{assistantID}/launch", catalogHandler.LaunchAssistant)
		r.Get("/answer-categories", catalogHandler.AnswerCategories)
		r.Get("/knowledge-bases", catalogHandler.KnowledgeBases)
		r.Get("/suggested-questions", catalogHandler.SuggestedQuestions)

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(middleware.ValidIDParams("sessionID"))

				r.Get("/", sessionHandler.Get)
				r.Put("/", sessionHandler.Update)
				r.Delete("/", sessionHandler.Delete)

				// Turns
				r.Route("/turns", func(r chi.Router) {
					r.Get("/", turnHandler.History)
					r.Delete("/", turnHandler.Clear)
					r.Delete("/active", turnHandler.CancelActive)

					r.Group(func(r chi.Router) {
						if cfg.TurnRateLimitRequests > 0 {
							r.Use(middleware.SessionRateLimit(cfg.TurnRateLimitRequests, cfg.RateLimitWindow))
						}
						r.Post("/", turnHandler.Start)
						r.Post("/stream", streamHandler.StartAndStream)
					})

					r.Route("/{turnID}", func(r chi.Router) {
						r.Use(middleware.ValidIDParams("turnID"))

						r.Get("/", turnHandler.Get)
						r.Get("/stream", streamHandler.Stream)
						r.Get("/citations/{citationID}", turnHandler.Citation)
					})
				})
			})
		})
	})

	return r
}
