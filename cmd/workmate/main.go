package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/workmate-hq/workmate/internal/api"
	"github.com/workmate-hq/workmate/internal/auth"
	"github.com/workmate-hq/workmate/internal/config"
	"github.com/workmate-hq/workmate/internal/domain"
	"github.com/workmate-hq/workmate/internal/engine"
	"github.com/workmate-hq/workmate/internal/health"
	"github.com/workmate-hq/workmate/internal/llm"
	"github.com/workmate-hq/workmate/internal/platform/factory"
	"github.com/workmate-hq/workmate/internal/platform/logger"
	"github.com/workmate-hq/workmate/internal/policy"
	"github.com/workmate-hq/workmate/internal/store"
)

func main() {
	log := logger.New("workmate")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------- Storage layer -----------------
	st, err := factory.NewStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Store unavailable")
	}
	pinger, ok := st.(health.HealthPinger)
	if !ok {
		log.Fatal().Msg("store does not expose a health ping")
	}

	// -------- Intent resolver ---------------
	registry := engine.NewRegistry()
	resolver, err := llm.New(llm.Options{
		Keys:       cfg.GeminiAPIKeys,
		Models:     cfg.GeminiModels,
		EmbedModel: cfg.GeminiEmbedModel,
		Timeout:    cfg.ResolverTimeout,
	}, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Resolver unavailable; set WORKMATE_GEMINI_API_KEYS")
	}

	// -------- Engine ------------------------
	services := domain.New(st, log)
	policies := policy.NewIndex(policy.DefaultChunks(), resolver)
	resolver.SetKnowledge(services, policies)
	rules := engine.NewRules(st, cfg.PendingTTL)
	executor := engine.NewExecutor(st, services, log)
	eng := engine.New(st, resolver, registry, rules, executor, engine.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		HistoryWindow:       cfg.HistoryWindow,
	}, log)

	// -------- Health monitor ----------------
	storeChecker := store.NewHealthChecker(pinger, log, 2*time.Second)
	resolverChecker := llm.NewHealthChecker(resolver, log, 2*time.Second)
	serviceHealth := health.NewServiceHealthChecker(log, storeChecker, resolverChecker)
	go storeChecker.Start(ctx, 30*time.Second)
	go resolverChecker.Start(ctx, 30*time.Second)
	go serviceHealth.Start(ctx, 30*time.Second)

	// -------- Router & Server ---------------
	router := api.NewRouter(api.Deps{
		Store:      st,
		Engine:     eng,
		Services:   services,
		Authorizer: auth.NewMockAuthorizer(cfg.DevAPIKey),
		Health:     serviceHealth,
		Pinger:     pinger,
	})
	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // resolver calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server…")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
