package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type linkRepoFake struct {
	pairs   map[string]bool
	created []string
	linkErr error
}

func newLinkRepoFake() *linkRepoFake {
	return &linkRepoFake{pairs: make(map[string]bool)}
}

func (f *linkRepoFake) key(orderID, solicitationID string) string {
	return orderID + "|" + solicitationID
}

func (f *linkRepoFake) Link(_ context.Context, orderID, solicitationID string) (bool, error) {
	if f.linkErr != nil {
		return false, f.linkErr
	}
	k := f.key(orderID, solicitationID)
	if f.pairs[k] {
		return false, nil
	}
	f.pairs[k] = true
	f.created = append(f.created, k)
	return true, nil
}

func (f *linkRepoFake) Exists(_ context.Context, orderID, solicitationID string) (bool, error) {
	return f.pairs[f.key(orderID, solicitationID)], nil
}

func (f *linkRepoFake) OrdersForSolicitation(context.Context, string) ([]domain.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *linkRepoFake) SolicitationsForOrder(context.Context, string) ([]domain.Solicitation, error) {
	return nil, errors.New("not implemented")
}

type linkSolRepoFake struct {
	ingestSolRepoFake
	byNumber map[string]*domain.Solicitation
}

func (f *linkSolRepoFake) FindByNumber(_ context.Context, number string) (*domain.Solicitation, error) {
	return f.byNumber[number], nil
}

type linkOrderRepoFake struct {
	ingestOrderRepoFake
	legacyOrders []domain.Order
}

func (f *linkOrderRepoFake) ListWithLegacyRef(context.Context) ([]domain.Order, error) {
	return f.legacyOrders, nil
}

func TestMatchOrderLinksByExactNumber(t *testing.T) {
	links := newLinkRepoFake()
	sols := &linkSolRepoFake{
		byNumber: map[string]*domain.Solicitation{
			"SPE4A7-26-Q-0101": {ID: "sol-1", SolicitationNumber: "SPE4A7-26-Q-0101"},
		},
	}
	uc := NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, sols)

	order := &domain.Order{ID: "ord-1", SolicitationNumber: " SPE4A7-26-Q-0101 "}
	if err := uc.MatchOrder(context.Background(), order); err != nil {
		t.Fatalf("MatchOrder() error = %v", err)
	}
	if !links.pairs["ord-1|sol-1"] {
		t.Fatalf("expected link ord-1|sol-1, got %v", links.pairs)
	}
}

func TestMatchOrderNoMatchIsSkipped(t *testing.T) {
	links := newLinkRepoFake()
	uc := NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, &linkSolRepoFake{byNumber: map[string]*domain.Solicitation{}})

	order := &domain.Order{ID: "ord-1", SolicitationNumber: "SPE4A7-26-Q-9999"}
	if err := uc.MatchOrder(context.Background(), order); err != nil {
		t.Fatalf("MatchOrder() error = %v", err)
	}
	if len(links.pairs) != 0 {
		t.Fatalf("expected no links for unresolved reference, got %v", links.pairs)
	}
}

func TestMatchOrderEmptyNumberIsNoop(t *testing.T) {
	links := newLinkRepoFake()
	uc := NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, &linkSolRepoFake{})

	if err := uc.MatchOrder(context.Background(), &domain.Order{ID: "ord-1"}); err != nil {
		t.Fatalf("MatchOrder() error = %v", err)
	}
	if len(links.pairs) != 0 {
		t.Fatalf("expected no links, got %v", links.pairs)
	}
}

func TestResolveLegacyLinkIdempotent(t *testing.T) {
	links := newLinkRepoFake()
	uc := NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, &linkSolRepoFake{})

	order := &domain.Order{ID: "ord-1", LegacySolicitationID: "sol-legacy"}
	created, err := uc.ResolveLegacyLink(context.Background(), order)
	if err != nil {
		t.Fatalf("ResolveLegacyLink() error = %v", err)
	}
	if !created {
		t.Fatalf("expected link synthesized on first call")
	}

	created, err = uc.ResolveLegacyLink(context.Background(), order)
	if err != nil {
		t.Fatalf("ResolveLegacyLink() second call error = %v", err)
	}
	if created {
		t.Fatalf("expected no-op on second call")
	}
	if len(links.created) != 1 {
		t.Fatalf("expected exactly one insert, got %v", links.created)
	}
	if order.LegacySolicitationID != "sol-legacy" {
		t.Fatalf("legacy reference must stay untouched, got %q", order.LegacySolicitationID)
	}
}

func TestOnLinkCreatedFiresOncePerNewLink(t *testing.T) {
	links := newLinkRepoFake()
	sols := &linkSolRepoFake{
		byNumber: map[string]*domain.Solicitation{
			"SPE4A7-26-Q-0101": {ID: "sol-1", SolicitationNumber: "SPE4A7-26-Q-0101"},
		},
	}
	uc := NewLinkDocumentsUseCase(links, &linkOrderRepoFake{}, sols)
	fired := 0
	uc.OnLinkCreated(func() { fired++ })

	order := &domain.Order{ID: "ord-1", SolicitationNumber: "SPE4A7-26-Q-0101"}
	if err := uc.MatchOrder(context.Background(), order); err != nil {
		t.Fatalf("MatchOrder() error = %v", err)
	}
	if err := uc.MatchOrder(context.Background(), order); err != nil {
		t.Fatalf("MatchOrder() repeat error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected callback once for the new link, got %d", fired)
	}

	legacy := &domain.Order{ID: "ord-2", LegacySolicitationID: "sol-legacy"}
	if _, err := uc.ResolveLegacyLink(context.Background(), legacy); err != nil {
		t.Fatalf("ResolveLegacyLink() error = %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected callback for synthesized link, got %d", fired)
	}
}

func TestBackfillLegacyLinksCountsSynthesized(t *testing.T) {
	links := newLinkRepoFake()
	links.pairs["ord-2|sol-b"] = true
	orders := &linkOrderRepoFake{
		legacyOrders: []domain.Order{
			{ID: "ord-1", LegacySolicitationID: "sol-a"},
			{ID: "ord-2", LegacySolicitationID: "sol-b"},
			{ID: "ord-3", LegacySolicitationID: "sol-c"},
		},
	}
	uc := NewLinkDocumentsUseCase(links, orders, &linkSolRepoFake{})

	resolved, err := uc.BackfillLegacyLinks(context.Background())
	if err != nil {
		t.Fatalf("BackfillLegacyLinks() error = %v", err)
	}
	if resolved != 2 {
		t.Fatalf("expected 2 synthesized links, got %d", resolved)
	}
}
