package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

// IngestConfig carries the business heuristics that gate webhook-path
// ingestion.
type IngestConfig struct {
	// WebhookMaxPDFAttachments caps how many PDFs a solicitation message
	// may carry before the webhook path defers it to the poll.
	WebhookMaxPDFAttachments int
}

// IngestEmailUseCase turns one upstream message into at most one document.
// The advisory dedup probe plus the storage uniqueness constraint make it
// idempotent under concurrent delivery from the webhook and the poll.
type IngestEmailUseCase struct {
	solicitations ports.SolicitationRepository
	orders        ports.OrderRepository
	storage       ports.ObjectStorage
	queue         ports.MessageQueue
	mail          ports.MailClient
	cfg           IngestConfig
}

func NewIngestEmailUseCase(
	solicitations ports.SolicitationRepository,
	orders ports.OrderRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	mail ports.MailClient,
	cfg IngestConfig,
) *IngestEmailUseCase {
	if cfg.WebhookMaxPDFAttachments <= 0 {
		cfg.WebhookMaxPDFAttachments = 1
	}
	return &IngestEmailUseCase{
		solicitations: solicitations,
		orders:        orders,
		storage:       storage,
		queue:         queue,
		mail:          mail,
		cfg:           cfg,
	}
}

func (uc *IngestEmailUseCase) ProcessNewEmail(
	ctx context.Context,
	messageID string,
	channel ports.IngestChannel,
) (ports.IngestOutcome, error) {
	already, err := uc.alreadyProcessed(ctx, messageID)
	if err != nil {
		return "", fmt.Errorf("dedup probe: %w", err)
	}
	if already {
		return ports.OutcomeDuplicate, nil
	}

	msg, err := uc.mail.GetMessage(ctx, messageID)
	if err != nil {
		return "", fmt.Errorf("fetch message: %w", err)
	}

	pdfs := pdfAttachments(msg.Attachments)
	if len(pdfs) == 0 {
		uc.markRead(ctx, messageID)
		return ports.OutcomeSkipped, nil
	}

	kind := classifyKind(msg.Subject, pdfs[0].Name)
	if channel == ports.ChannelWebhook &&
		kind == domain.KindSolicitation &&
		len(pdfs) > uc.cfg.WebhookMaxPDFAttachments {
		// Left unread so the next poll picks it up whole.
		slog.Warn("deferring multi-attachment solicitation to poll",
			"message_id", messageID,
			"attachments", len(pdfs),
		)
		return ports.OutcomeSkipped, nil
	}

	attachment := pdfs[0]
	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", kind, id, sanitizeFilename(attachment.Name))
	if err := uc.storage.Save(
		ctx,
		storageKey,
		attachment.ContentType,
		bytes.NewReader(attachment.Content),
		int64(len(attachment.Content)),
	); err != nil {
		return "", fmt.Errorf("save attachment to object storage: %w", err)
	}

	now := time.Now().UTC()
	provenance := domain.Provenance{
		ExternalMessageID: msg.ID,
		Sender:            msg.Sender,
		Subject:           msg.Subject,
		ReceivedTime:      msg.ReceivedAt,
	}

	switch kind {
	case domain.KindOrder:
		err = uc.orders.Create(ctx, &domain.Order{
			ID:                id,
			Status:            domain.StatusUploaded,
			FulfillmentStatus: domain.FulfillmentPending,
			ReceivedAt:        msg.ReceivedAt,
			Filename:          attachment.Name,
			StoragePath:       storageKey,
			Provenance:        provenance,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	default:
		err = uc.solicitations.Create(ctx, &domain.Solicitation{
			ID:          id,
			Status:      domain.StatusUploaded,
			ReceivedAt:  msg.ReceivedAt,
			Filename:    attachment.Name,
			StoragePath: storageKey,
			Provenance:  provenance,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrDuplicateMessage) {
			// Lost the create race to the other producer; the message is
			// already attributed.
			return ports.OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("create %s document: %w", kind, err)
	}

	if err := uc.queue.PublishDocumentReceived(ctx, kind, id); err != nil {
		return ports.OutcomeCreated, fmt.Errorf("publish document event: %w", err)
	}

	uc.markRead(ctx, messageID)
	return ports.OutcomeCreated, nil
}

// alreadyProcessed is advisory: it probes both document kinds, but the
// per-kind uniqueness constraint remains the authoritative guard.
func (uc *IngestEmailUseCase) alreadyProcessed(ctx context.Context, externalID string) (bool, error) {
	sol, err := uc.solicitations.FindByExternalMessageID(ctx, externalID)
	if err != nil {
		return false, err
	}
	if sol != nil {
		return true, nil
	}
	order, err := uc.orders.FindByExternalMessageID(ctx, externalID)
	if err != nil {
		return false, err
	}
	return order != nil, nil
}

func (uc *IngestEmailUseCase) markRead(ctx context.Context, messageID string) {
	if err := uc.mail.MarkRead(ctx, messageID); err != nil {
		slog.Warn("mark message read failed", "message_id", messageID, "error", err)
	}
}

func pdfAttachments(attachments []ports.MailAttachment) []ports.MailAttachment {
	var pdfs []ports.MailAttachment
	for _, a := range attachments {
		ct := strings.ToLower(a.ContentType)
		if strings.Contains(ct, "pdf") || strings.HasSuffix(strings.ToLower(a.Name), ".pdf") {
			pdfs = append(pdfs, a)
		}
	}
	return pdfs
}

var orderIndicators = []string{"purchase order", "po number", "award", "contract award"}

func classifyKind(subject, filename string) domain.DocumentKind {
	haystack := strings.ToLower(subject + " " + filename)
	for _, indicator := range orderIndicators {
		if strings.Contains(haystack, indicator) {
			return domain.KindOrder
		}
	}
	return domain.KindSolicitation
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.pdf"
	}
	return base
}
