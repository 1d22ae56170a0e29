package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/ayulabs/ayurag/internal/adapters/http"
	"github.com/ayulabs/ayurag/internal/bootstrap"
	"github.com/ayulabs/ayurag/internal/config"
	"github.com/ayulabs/ayurag/internal/core/domain"
	"github.com/ayulabs/ayurag/internal/core/ports"
	"github.com/ayulabs/ayurag/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger("ayurag-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	var publisher ports.ProgressPublisher
	if app.Publisher != nil {
		publisher = app.Publisher
	}
	router := httpadapter.NewRouter(app.Pipeline, app.Metrics, httpadapter.RouterOptions{
		Service:        "api",
		DefaultMode:    domain.NormalizeMode(cfg.DefaultMode),
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		MaxInFlight:    cfg.MaxConcurrentRuns,
		Publisher:      publisher,
	})

	server := &http.Server{
		Addr:        ":" + cfg.APIPort,
		Handler:     router.Handler(),
		ReadTimeout: 30 * time.Second,
		// Write timeout must outlive a full pipeline run, streaming included.
		WriteTimeout: time.Duration(cfg.RequestTimeoutSeconds+30) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_error", "error", err)
	}
}
