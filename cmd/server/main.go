package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/riandyrn/otelchi"
	"github.com/socialchef/ttlcache/internal/api"
	"github.com/socialchef/ttlcache/internal/cache"
	"github.com/socialchef/ttlcache/internal/config"
	"github.com/socialchef/ttlcache/internal/logger"
	"github.com/socialchef/ttlcache/internal/middleware"
	"github.com/socialchef/ttlcache/internal/scheduler"
	"github.com/socialchef/ttlcache/internal/services/openai"
	"github.com/socialchef/ttlcache/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger with OTel support
	l := logger.New(cfg.Env)
	slog.SetDefault(l)

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.Env,
		cfg.OtelExporterOTLPEndpoint, telemetry.ParseHeaders(cfg.OtelExporterOTLPHeaders))
	if err != nil {
		slog.Warn("Failed to init telemetry", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	slog.Info("Service starting up", "service", cfg.ServiceName, "env", cfg.Env)

	store := cache.New(cache.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL(),
		Logger:     l.With("component", "cache"),
	})

	sched := scheduler.New(scheduler.Config{
		Env:       cfg.Env,
		Enabled:   cfg.Scheduler.Enabled,
		SweepSpec: cfg.Scheduler.SweepSpec,
	}, l.With("component", "scheduler"))
	if _, err := sched.Start(store); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	chat := openai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	apiServer := api.NewServer(store, chat)

	r := chi.NewRouter()
	r.Use(otelchi.Middleware(cfg.ServiceName,
		otelchi.WithChiRoutes(r),
		otelchi.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	))
	r.Use(middleware.RequestID)
	r.Use(middleware.ProcessTime)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	apiServer.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Service shutting down", "service", cfg.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		slog.Error("Scheduler shutdown failed", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry shutdown failed", "error", err)
	}
}
