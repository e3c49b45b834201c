package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ai-astrologer/ai-astrologer/internal/api"
	"github.com/ai-astrologer/ai-astrologer/internal/auth"
	"github.com/ai-astrologer/ai-astrologer/internal/config"
	"github.com/ai-astrologer/ai-astrologer/internal/core"
	"github.com/ai-astrologer/ai-astrologer/internal/logger"
	"github.com/ai-astrologer/ai-astrologer/internal/metrics"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
	"github.com/ai-astrologer/ai-astrologer/internal/watch"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "Open the store, apply pending migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	if err := run(cfg, log, *migrateOnly); err != nil {
		log.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := newBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	db, err := newStore(ctx, cfg, bus)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateOnly {
		log.Info("store is up to date", slog.String("backend", cfg.StoreBackend))
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	llm, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return err
	}
	defer llm.Close()

	generator := core.NewPredictionGenerator(llm, core.GeneratorConfig{
		Format:            cfg.PredictionFormat,
		RequireTimeframes: cfg.RequireTimeframes,
		Timeout:           cfg.LLMTimeout,
	}, collector)
	responder := core.NewResponder(llm, core.ResponderConfig{
		MaxSentences: cfg.ReplyMaxSentences,
		Timeout:      cfg.LLMTimeout,
	}, collector)
	chatService := core.NewChatService(db, generator, responder, log)

	provider := auth.NewGoogleProvider(auth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(provider, db, auth.NewTokenIssuer(cfg.SessionSecret), auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})

	renderer, err := view.NewRenderer()
	if err != nil {
		return err
	}

	limiter := api.NewRateLimiter(cfg.RateLimitPerMinute, 5*time.Minute)
	defer limiter.Stop()

	apiHandler := api.NewAPIHandler(api.Options{
		Chat:          chatService,
		Auth:          authService,
		Renderer:      renderer,
		Metrics:       collector,
		Logger:        log,
		Limiter:       limiter,
		SecureCookies: cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
		Location:      cfg.DisplayLocation,
	})
	router := api.NewRouter(apiHandler, metrics.Handler(registry))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation can take up to LLMTimeout; event streams extend their
		// own deadline per write.
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", slog.String("addr", srv.Addr), slog.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited gracefully")
	return nil
}

// newBus picks the change fan-out. Redis lets several instances share live
// updates; without it changes only reach subscribers in this process.
func newBus(ctx context.Context, cfg *config.Config, log *slog.Logger) (watch.Bus, error) {
	if cfg.RedisAddr == "" {
		return watch.NewHub(), nil
	}
	return watch.NewRedisBus(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
}

func newStore(ctx context.Context, cfg *config.Config, bus watch.Bus) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		return store.NewFirestoreStore(ctx, cfg.FirestoreProjectID)
	case config.StoreMongo:
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, bus)
	default:
		return store.NewSQLiteStore(cfg.DatabaseURL, bus)
	}
}
