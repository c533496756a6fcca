package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"watchparty/internal/api"
	"watchparty/internal/config"
	"watchparty/internal/db"
	"watchparty/internal/gemini"
	"watchparty/internal/openai"
	"watchparty/internal/repository"
	"watchparty/internal/services"
	"watchparty/internal/services/collaboration"
	"watchparty/internal/telemetry"
	"watchparty/internal/workerpool"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

/*
Startup order: tracing, database, AI backends, worker pools, session manager,
HTTP. Shutdown runs the other way round once ctx is cancelled: stop accepting
HTTP, close websocket sessions, drain the pools, then the deferred database
and tracer closes.
*/
func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("watchparty starting",
		"version", version,
		"addr", cfg.Addr(),
		"db_driver", cfg.DBDriver,
		"ai_provider", cfg.AIProvider,
	)

	shutdownTracing, err := telemetry.InitJaeger("watchparty", version, cfg.JaegerEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		return err
	}

	store := repository.NewStore(database.DB)
	videos := repository.NewVideoRepository(database.DB)
	transcripts := repository.NewTranscriptRepository(database.DB)

	llm, embedder, closeAI, err := newAIBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAI()

	assistant := services.NewAssistant(llm, embedder, store, store, transcripts, cfg.ContextSegmentLimit)

	aiPool := workerpool.New("ai", cfg.AIWorkers, cfg.AIQueueSize)
	aiPool.Start()
	processingPool := workerpool.New("processing", cfg.ProcessingWorkers, cfg.ProcessingQueueSize)
	processingPool.Start()

	processing := services.NewProcessingService(videos, transcripts, store, embedder, processingPool)

	sessionManager := collaboration.NewSessionManager(store, assistant, processing, aiPool, collaboration.Options{
		AssistantName:      cfg.AssistantName,
		Mention:            cfg.AssistantMention,
		Triggers:           cfg.AssistantTriggers,
		HistoryLimit:       cfg.ChatHistoryLimit,
		AITimeout:          cfg.AITimeout,
		StatusPollInterval: cfg.StatusPollInterval,
		IdleTimeout:        cfg.IdleTimeout,
	})
	sessionManager.Start()

	handler := api.NewHandler(
		store,
		sessionManager.Registry(),
		sessionManager,
		processing,
		database,
		collaboration.NewWebSocketHandler(sessionManager),
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)

		sessionManager.Shutdown()
		aiPool.Shutdown()
		processingPool.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("watchparty stopped")
	return nil
}

// newAIBackends builds the language model and embedder for AI_PROVIDER.
// Embeddings always come from OpenAI: the segment column is sized for its
// vectors. Either return value may be nil.
func newAIBackends(ctx context.Context, cfg *config.Config) (services.LLM, services.Embedder, func(), error) {
	var (
		llm      services.LLM
		embedder services.Embedder
		closeFn  = func() {}
	)

	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbeddingModel)
		embedder = client
		if cfg.AIProvider == "openai" {
			llm = client
		}
	}

	switch cfg.AIProvider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, nil, err
		}
		llm = client
		closeFn = func() {
			if err := client.Close(); err != nil {
				slog.Warn("failed to close gemini client", "error", err)
			}
		}
	case "none":
		slog.Warn("no AI provider configured; assistant questions get a fallback reply")
	}

	if embedder == nil {
		slog.Info("no embedder configured; context segments are picked in video order")
	}

	return llm, embedder, closeFn, nil
}
