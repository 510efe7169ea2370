package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/andretaki/simurgh-sub002/internal/adapters/http"
	"github.com/andretaki/simurgh-sub002/internal/bootstrap"
	"github.com/andretaki/simurgh-sub002/internal/config"
	"github.com/andretaki/simurgh-sub002/internal/observability/logging"
	"github.com/andretaki/simurgh-sub002/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("api")

	router := httpadapter.NewRouter(
		app.IngestUC,
		app.WorkflowUC,
		app.HealthUC,
		app.LinkUC,
		app.PollUC,
		serverMetrics,
		httpadapter.Config{
			WebhookClientState:   cfg.WebhookClientState,
			WebhookRatePerSecond: cfg.WebhookRatePerSecond,
			WebhookRateBurst:     cfg.WebhookRateBurst,
		},
	).Handler()

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", serverMetrics.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
