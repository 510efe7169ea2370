package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

// ProcessDocumentUseCase is the worker-side extraction pipeline: download
// bytes, pull text, call the external field extractor, persist the fields,
// and (for orders) attach the solicitation link. Failures land on the
// document's own status and never abort sibling documents.
type ProcessDocumentUseCase struct {
	solicitations ports.SolicitationRepository
	orders        ports.OrderRepository
	storage       ports.ObjectStorage
	text          ports.TextExtractor
	fields        ports.FieldExtractor
	linker        *LinkDocumentsUseCase
}

func NewProcessDocumentUseCase(
	solicitations ports.SolicitationRepository,
	orders ports.OrderRepository,
	storage ports.ObjectStorage,
	text ports.TextExtractor,
	fields ports.FieldExtractor,
	linker *LinkDocumentsUseCase,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		solicitations: solicitations,
		orders:        orders,
		storage:       storage,
		text:          text,
		fields:        fields,
		linker:        linker,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, kind domain.DocumentKind, documentID string) error {
	switch kind {
	case domain.KindSolicitation:
		return uc.processSolicitation(ctx, documentID)
	case domain.KindOrder:
		return uc.processOrder(ctx, documentID)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "process document", fmt.Errorf("unknown kind %q", kind))
	}
}

func (uc *ProcessDocumentUseCase) processSolicitation(ctx context.Context, id string) error {
	if err := uc.solicitations.UpdateStatus(ctx, id, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, err := uc.solicitations.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch solicitation: %w", err)
	}

	fields, err := uc.extract(ctx, domain.KindSolicitation, doc.StoragePath)
	if err != nil {
		if failErr := uc.solicitations.UpdateStatus(ctx, id, failureStatus(err), err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.solicitations.SaveFields(ctx, id, fields); err != nil {
		return fmt.Errorf("save solicitation fields: %w", err)
	}
	if err := uc.solicitations.UpdateStatus(ctx, id, domain.StatusProcessed, ""); err != nil {
		return fmt.Errorf("set status=processed: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processOrder(ctx context.Context, id string) error {
	if err := uc.orders.UpdateStatus(ctx, id, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, err := uc.orders.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}

	fields, err := uc.extract(ctx, domain.KindOrder, doc.StoragePath)
	if err != nil {
		if failErr := uc.orders.UpdateStatus(ctx, id, failureStatus(err), err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.orders.SaveFields(ctx, id, fields); err != nil {
		return fmt.Errorf("save order fields: %w", err)
	}
	if err := uc.orders.UpdateStatus(ctx, id, domain.StatusProcessed, ""); err != nil {
		return fmt.Errorf("set status=processed: %w", err)
	}

	doc.SolicitationNumber = fields.SolicitationNumber
	if err := uc.linker.MatchOrder(ctx, doc); err != nil {
		// The document itself processed fine; linking problems surface in
		// the workflow view, not as a processing failure.
		return fmt.Errorf("match order to solicitation: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, kind domain.DocumentKind, storagePath string) (domain.ExtractedFields, error) {
	reader, err := uc.storage.Open(ctx, storagePath)
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("read stored document: %w", err)
	}

	text, err := uc.text.ExtractText(ctx, data)
	if err != nil {
		return domain.ExtractedFields{}, domain.WrapError(domain.ErrExtraction, "extract text", err)
	}

	fields, err := uc.fields.ExtractFields(ctx, kind, text)
	if err != nil {
		return domain.ExtractedFields{}, fmt.Errorf("extract fields: %w", err)
	}
	return fields, nil
}

// failureStatus keeps extraction failures distinguishable from everything
// else that can go wrong in the pipeline.
func failureStatus(err error) domain.DocumentStatus {
	if domain.IsKind(err, domain.ErrExtraction) {
		return domain.StatusExtractionFailed
	}
	return domain.StatusFailed
}
