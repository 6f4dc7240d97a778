// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/config"
	"github.com/capitalize-ai/presales-assistant/internal/handler"
	natsclient "github.com/capitalize-ai/presales-assistant/internal/nats"
	"github.com/capitalize-ai/presales-assistant/internal/notify"
	"github.com/capitalize-ai/presales-assistant/internal/orchestrator"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
	"github.com/capitalize-ai/presales-assistant/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if os.Getenv("ENV") == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Connect to NATS when configured; without it events are only logged
	publisher := natsclient.NewPublisher(nil)
	var natsStatus handler.ConnectionChecker
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			Name:     cfg.ServiceName,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		publisher = natsclient.NewPublisher(natsClient)
		natsStatus = natsClient
		log.Info("publishing turn events",
			zap.String("nats_url", cfg.NATSURL),
			zap.String("subscribe_subject", natsclient.SessionFilter("*")),
		)
	}

	notifier := notify.Multi{
		notify.NewLogSink(log),
		notify.NewPublisherSink(publisher, log),
	}

	// Initialize services
	answers := catalog.Default()
	pacing := orchestrator.Pacing{
		ConnectDelay:       cfg.ConnectDelay,
		RetrievalStepDelay: cfg.RetrievalStepDelay,
		AnalyzeDelay:       cfg.AnalyzeDelay,
		ReasoningStepDelay: cfg.ReasoningStepDelay,
		RevealInterval:     cfg.RevealInterval,
		RevealChunk:        cfg.RevealChunk,
	}
	sessionSvc := service.NewSessionService(func(sessionID string) *orchestrator.Orchestrator {
		return orchestrator.New(answers,
			orchestrator.WithSessionID(sessionID),
			orchestrator.WithPacing(pacing),
			orchestrator.WithDefaultKnowledgeBases(cfg.KnowledgeBaseLabels),
			orchestrator.WithPublisher(publisher),
			orchestrator.WithLogger(log),
		)
	}, log)

	router := handler.NewRouter(handler.RouterConfig{
		Sessions:              sessionSvc,
		Answers:               answers,
		Notifier:              notifier,
		NATS:                  natsStatus,
		Logger:                log,
		CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRequests:     cfg.RateLimitRequests,
		RateLimitWindow:       cfg.RateLimitWindow,
		TurnRateLimitRequests: cfg.TurnRateLimitRequests,
		SSEHeartbeatInterval:  cfg.SSEHeartbeatInterval,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Stop running turns so open streams finish with a cancelled state
		sessionSvc.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}

	log.Info("server stopped")
	return nil
}
