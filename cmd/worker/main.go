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

	"github.com/andretaki/simurgh-sub002/internal/bootstrap"
	"github.com/andretaki/simurgh-sub002/internal/config"
	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/observability/logging"
	"github.com/andretaki/simurgh-sub002/internal/observability/metrics"
	"github.com/andretaki/simurgh-sub002/internal/scheduler"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.LinkUC.OnLinkCreated(workerMetrics.RecordLinkCreated)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	poller := scheduler.NewPoller(app.PollUC, workerMetrics, cfg.PollCron)
	if err := poller.Start(ctx); err != nil {
		log.Fatalf("poller start error: %v", err)
	}
	defer poller.Stop()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentReceived(ctx, func(handlerCtx context.Context, kind domain.DocumentKind, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()
		processErr := app.ProcessUC.ProcessByID(processCtx, kind, documentID)
		workerMetrics.FinishDocument("worker", string(kind), time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
