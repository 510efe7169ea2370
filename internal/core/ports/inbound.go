package ports

import (
	"context"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

// IngestChannel identifies which producer delivered a message. The webhook
// and the poll overlap; ingestion must be idempotent across both.
type IngestChannel string

const (
	ChannelWebhook IngestChannel = "webhook"
	ChannelPoll    IngestChannel = "poll"
)

// IngestOutcome classifies what ProcessNewEmail did with a message.
type IngestOutcome string

const (
	OutcomeCreated   IngestOutcome = "created"
	OutcomeDuplicate IngestOutcome = "duplicate"
	OutcomeSkipped   IngestOutcome = "skipped"
)

// MailIngestor turns one upstream message into at most one document.
type MailIngestor interface {
	ProcessNewEmail(ctx context.Context, messageID string, channel IngestChannel) (IngestOutcome, error)
}

// PollSummary reports what a poll run covered.
type PollSummary struct {
	Plan       domain.LookbackPlan `json:"plan"`
	Scanned    int                 `json:"scanned"`
	Created    int                 `json:"created"`
	Duplicates int                 `json:"duplicates"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
}

// PollRunner executes one scheduled scan of the upstream mailbox.
type PollRunner interface {
	RunPoll(ctx context.Context, now time.Time) (PollSummary, error)
}

// DocumentProcessor is the worker-side contract for asynchronous
// extraction and linking.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, kind domain.DocumentKind, documentID string) error
}

// WorkflowQuery narrows and pages a workflow listing.
type WorkflowQuery struct {
	Status string
	Limit  int
	Offset int
}

// WorkflowReader assembles derived workflow records; read-only.
type WorkflowReader interface {
	GetWorkflow(ctx context.Context, identifier string) (*domain.WorkflowRecord, error)
	ListWorkflows(ctx context.Context, q WorkflowQuery) ([]domain.WorkflowRecord, error)
}

// LinkMaintainer is the explicit legacy-reference reconciliation surface;
// reads never repair links as a side effect.
type LinkMaintainer interface {
	BackfillLegacyLinks(ctx context.Context) (int, error)
}

// HealthReporter surfaces accumulated ingestion failure state.
type HealthReporter interface {
	IngestionHealth(ctx context.Context, now time.Time) (domain.HealthReport, error)
}
