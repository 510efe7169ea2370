package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type processSolRepoFake struct {
	ingestSolRepoFake
	doc         *domain.Solicitation
	statuses    []domain.DocumentStatus
	lastError   string
	savedFields *domain.ExtractedFields
}

func (f *processSolRepoFake) GetByID(context.Context, string) (*domain.Solicitation, error) {
	if f.doc == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get solicitation", errors.New("no rows"))
	}
	return f.doc, nil
}

func (f *processSolRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statuses = append(f.statuses, status)
	f.lastError = errMessage
	return nil
}

func (f *processSolRepoFake) SaveFields(_ context.Context, _ string, fields domain.ExtractedFields) error {
	f.savedFields = &fields
	return nil
}

type processOrderRepoFake struct {
	ingestOrderRepoFake
	doc         *domain.Order
	statuses    []domain.DocumentStatus
	savedFields *domain.ExtractedFields
}

func (f *processOrderRepoFake) GetByID(context.Context, string) (*domain.Order, error) {
	if f.doc == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get order", errors.New("no rows"))
	}
	return f.doc, nil
}

func (f *processOrderRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, _ string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *processOrderRepoFake) SaveFields(_ context.Context, _ string, fields domain.ExtractedFields) error {
	f.savedFields = &fields
	return nil
}

type processStorageFake struct {
	content string
	openErr error
}

func (f *processStorageFake) Save(context.Context, string, string, io.Reader, int64) error {
	return errors.New("not implemented")
}

func (f *processStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

type textExtractorFake struct {
	text string
	err  error
}

func (f *textExtractorFake) ExtractText(context.Context, []byte) (string, error) {
	return f.text, f.err
}

type fieldExtractorFake struct {
	fields domain.ExtractedFields
	err    error
}

func (f *fieldExtractorFake) ExtractFields(context.Context, domain.DocumentKind, string) (domain.ExtractedFields, error) {
	return f.fields, f.err
}

func TestProcessSolicitationHappyPath(t *testing.T) {
	sols := &processSolRepoFake{
		doc: &domain.Solicitation{ID: "sol-1", StoragePath: "solicitation/sol-1_rfq.pdf"},
	}
	fields := &fieldExtractorFake{
		fields: domain.ExtractedFields{SolicitationNumber: "SPE4A7-26-Q-0101"},
	}
	uc := NewProcessDocumentUseCase(
		sols, &processOrderRepoFake{}, &processStorageFake{content: "%PDF"},
		&textExtractorFake{text: "request for quotation"}, fields,
		NewLinkDocumentsUseCase(newLinkRepoFake(), &linkOrderRepoFake{}, &linkSolRepoFake{}),
	)

	if err := uc.ProcessByID(context.Background(), domain.KindSolicitation, "sol-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if sols.savedFields == nil || sols.savedFields.SolicitationNumber != "SPE4A7-26-Q-0101" {
		t.Fatalf("expected fields saved, got %+v", sols.savedFields)
	}
	want := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusProcessed}
	if len(sols.statuses) != 2 || sols.statuses[0] != want[0] || sols.statuses[1] != want[1] {
		t.Fatalf("expected status transitions %v, got %v", want, sols.statuses)
	}
}

func TestProcessSolicitationTextFailureMarksExtractionFailed(t *testing.T) {
	sols := &processSolRepoFake{
		doc: &domain.Solicitation{ID: "sol-1", StoragePath: "solicitation/sol-1_rfq.pdf"},
	}
	uc := NewProcessDocumentUseCase(
		sols, &processOrderRepoFake{}, &processStorageFake{content: "junk"},
		&textExtractorFake{err: errors.New("no text layer")}, &fieldExtractorFake{},
		NewLinkDocumentsUseCase(newLinkRepoFake(), &linkOrderRepoFake{}, &linkSolRepoFake{}),
	)

	err := uc.ProcessByID(context.Background(), domain.KindSolicitation, "sol-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	last := sols.statuses[len(sols.statuses)-1]
	if last != domain.StatusExtractionFailed {
		t.Fatalf("expected extraction_failed, got %s", last)
	}
	if sols.lastError == "" {
		t.Fatalf("expected error message persisted")
	}
}

func TestProcessSolicitationStorageFailureMarksFailed(t *testing.T) {
	sols := &processSolRepoFake{
		doc: &domain.Solicitation{ID: "sol-1", StoragePath: "solicitation/sol-1_rfq.pdf"},
	}
	uc := NewProcessDocumentUseCase(
		sols, &processOrderRepoFake{}, &processStorageFake{openErr: errors.New("bucket gone")},
		&textExtractorFake{}, &fieldExtractorFake{},
		NewLinkDocumentsUseCase(newLinkRepoFake(), &linkOrderRepoFake{}, &linkSolRepoFake{}),
	)

	err := uc.ProcessByID(context.Background(), domain.KindSolicitation, "sol-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	last := sols.statuses[len(sols.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", last)
	}
}

func TestProcessOrderLinksAfterExtraction(t *testing.T) {
	orders := &processOrderRepoFake{
		doc: &domain.Order{ID: "ord-1", StoragePath: "order/ord-1_po.pdf"},
	}
	links := newLinkRepoFake()
	matchSols := &linkSolRepoFake{
		byNumber: map[string]*domain.Solicitation{
			"SPE4A7-26-Q-0101": {ID: "sol-1", SolicitationNumber: "SPE4A7-26-Q-0101"},
		},
	}
	uc := NewProcessDocumentUseCase(
		&processSolRepoFake{}, orders, &processStorageFake{content: "%PDF"},
		&textExtractorFake{text: "purchase order"},
		&fieldExtractorFake{fields: domain.ExtractedFields{
			OrderNumber:        "SPE4A7-26-P-2210",
			SolicitationNumber: "SPE4A7-26-Q-0101",
		}},
		NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, matchSols),
	)

	if err := uc.ProcessByID(context.Background(), domain.KindOrder, "ord-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if orders.savedFields == nil || orders.savedFields.OrderNumber != "SPE4A7-26-P-2210" {
		t.Fatalf("expected order fields saved, got %+v", orders.savedFields)
	}
	if !links.pairs["ord-1|sol-1"] {
		t.Fatalf("expected order linked to solicitation, got %v", links.pairs)
	}
}

func TestProcessUnknownKindRejected(t *testing.T) {
	uc := NewProcessDocumentUseCase(
		&processSolRepoFake{}, &processOrderRepoFake{}, &processStorageFake{},
		&textExtractorFake{}, &fieldExtractorFake{},
		NewLinkDocumentsUseCase(newLinkRepoFake(), &linkOrderRepoFake{}, &linkSolRepoFake{}),
	)

	err := uc.ProcessByID(context.Background(), domain.DocumentKind("invoice"), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input error, got %v", err)
	}
}
