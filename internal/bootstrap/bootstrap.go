package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/config"
	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
	"github.com/andretaki/simurgh-sub002/internal/core/usecase"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/extractor/fields"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/extractor/pdftext"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/mail/graph"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/queue/nats"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/repository/postgres"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/resilience"
	"github.com/andretaki/simurgh-sub002/internal/infrastructure/storage/minio"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	IngestUC   ports.MailIngestor
	PollUC     ports.PollRunner
	ProcessUC  ports.DocumentProcessor
	WorkflowUC ports.WorkflowReader
	LinkUC     *usecase.LinkDocumentsUseCase
	HealthUC   ports.HealthReporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	solicitations := postgres.NewSolicitationRepository(db)
	orders := postgres.NewOrderRepository(db)
	quotes := postgres.NewQuoteRepository(db)
	links := postgres.NewLinkRepository(db)
	fulfillment := postgres.NewFulfillmentRepository(db)
	checkpoints := postgres.NewCheckpointRepository(db)

	storage, err := minio.New(ctx, minio.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	mailClient := graph.New(graph.Config{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		Mailbox:      cfg.GraphMailbox,
	}, executor)

	textExtractor := pdftext.New()
	fieldExtractor := fields.New(cfg.ExtractorURL, cfg.ExtractorAPIKey, executor)

	lookback := domain.DefaultLookbackConfig()
	lookback.DefaultWindowDays = cfg.LookbackDefaultWindowDays
	lookback.MaxWindowDays = cfg.LookbackMaxWindowDays
	lookback.BackoffMultiplier = cfg.LookbackBackoffMultiplier

	engine := domain.NewStatusEngine(time.Duration(cfg.QuoteLostAfterDays) * 24 * time.Hour)

	ingestUC := usecase.NewIngestEmailUseCase(solicitations, orders, storage, queue, mailClient, usecase.IngestConfig{
		WebhookMaxPDFAttachments: cfg.WebhookMaxPDFAttachments,
	})
	pollUC := usecase.NewPollMailboxUseCase(mailClient, ingestUC, checkpoints, cfg.IngestSource, lookback)
	linkUC := usecase.NewLinkDocumentsUseCase(links, orders, solicitations)
	processUC := usecase.NewProcessDocumentUseCase(solicitations, orders, storage, textExtractor, fieldExtractor, linkUC)
	workflowUC := usecase.NewWorkflowUseCase(solicitations, orders, quotes, fulfillment, links, engine)
	healthUC := usecase.NewIngestionHealthUseCase(checkpoints, cfg.IngestSource, lookback)

	return &App{
		Config: cfg,
		Queue:  queue,

		IngestUC:   ingestUC,
		PollUC:     pollUC,
		ProcessUC:  processUC,
		WorkflowUC: workflowUC,
		LinkUC:     linkUC,
		HealthUC:   healthUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
