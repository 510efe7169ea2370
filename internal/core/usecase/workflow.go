package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// WorkflowUseCase assembles derived workflow records by traversing the link
// graph in both directions. It is strictly read-only: no link repair, no
// caching across calls.
type WorkflowUseCase struct {
	solicitations ports.SolicitationRepository
	orders        ports.OrderRepository
	quotes        ports.QuoteRepository
	fulfillment   ports.FulfillmentRepository
	links         ports.LinkRepository
	engine        domain.StatusEngine
	now           func() time.Time
}

func NewWorkflowUseCase(
	solicitations ports.SolicitationRepository,
	orders ports.OrderRepository,
	quotes ports.QuoteRepository,
	fulfillment ports.FulfillmentRepository,
	links ports.LinkRepository,
	engine domain.StatusEngine,
) *WorkflowUseCase {
	return &WorkflowUseCase{
		solicitations: solicitations,
		orders:        orders,
		quotes:        quotes,
		fulfillment:   fulfillment,
		links:         links,
		engine:        engine,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GetWorkflow resolves a free-form identifier: solicitation number first,
// then order number, then raw document id.
func (uc *WorkflowUseCase) GetWorkflow(ctx context.Context, identifier string) (*domain.WorkflowRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get workflow", errors.New("empty identifier"))
	}

	sol, err := uc.solicitations.FindByNumber(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("find solicitation by number: %w", err)
	}
	if sol != nil {
		return uc.buildFromSolicitation(ctx, sol)
	}

	order, err := uc.orders.FindByNumber(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("find order by number: %w", err)
	}
	if order != nil {
		return uc.buildFromOrder(ctx, order)
	}

	sol, err = uc.solicitationByID(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if sol != nil {
		return uc.buildFromSolicitation(ctx, sol)
	}

	order, err = uc.orderByID(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return uc.buildFromOrder(ctx, order)
	}

	return nil, domain.WrapError(domain.ErrNotFound, "get workflow", fmt.Errorf("no workflow for %q", identifier))
}

// ListWorkflows returns every solicitation-rooted record plus orphan orders
// (no relation row, no legacy reference), filtered and sorted by recency.
func (uc *WorkflowUseCase) ListWorkflows(ctx context.Context, q ports.WorkflowQuery) ([]domain.WorkflowRecord, error) {
	if q.Status != "" && !domain.ValidWorkflowState(q.Status) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list workflows", fmt.Errorf("unknown status %q", q.Status))
	}

	sols, err := uc.solicitations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list solicitations: %w", err)
	}

	records := make([]domain.WorkflowRecord, 0, len(sols))
	for i := range sols {
		rec, err := uc.buildFromSolicitation(ctx, &sols[i])
		if err != nil {
			return nil, fmt.Errorf("assemble workflow for solicitation %s: %w", sols[i].ID, err)
		}
		records = append(records, *rec)
	}

	orphans, err := uc.orders.ListOrphans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphan orders: %w", err)
	}
	for i := range orphans {
		rec, err := uc.buildFromOrder(ctx, &orphans[i])
		if err != nil {
			return nil, fmt.Errorf("assemble workflow for order %s: %w", orphans[i].ID, err)
		}
		records = append(records, *rec)
	}

	if q.Status != "" {
		filtered := records[:0]
		for _, rec := range records {
			if string(rec.Status) == q.Status {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RecencyKey().After(records[j].RecencyKey())
	})

	return page(records, q.Limit, q.Offset), nil
}

func (uc *WorkflowUseCase) buildFromSolicitation(ctx context.Context, sol *domain.Solicitation) (*domain.WorkflowRecord, error) {
	linkedOrders, err := uc.ordersLinkedTo(ctx, sol.ID)
	if err != nil {
		return nil, err
	}
	primaryOrder := domain.PrimaryOrder(linkedOrders)

	quote, err := uc.quotes.GetBySolicitation(ctx, sol.ID)
	if err != nil {
		return nil, fmt.Errorf("load quote: %w", err)
	}

	linkedSols := []domain.Solicitation{*sol}
	if primaryOrder != nil {
		others, err := uc.links.SolicitationsForOrder(ctx, primaryOrder.ID)
		if err != nil {
			return nil, fmt.Errorf("traverse solicitations for order: %w", err)
		}
		linkedSols = mergeSolicitations(linkedSols, others)
	}

	var fulfillment []domain.FulfillmentRecord
	if primaryOrder != nil {
		fulfillment, err = uc.fulfillment.ListByOrder(ctx, primaryOrder.ID)
		if err != nil {
			return nil, fmt.Errorf("load fulfillment records: %w", err)
		}
	}

	status := uc.engine.Derive(domain.StatusInput{
		Solicitation: sol,
		Quote:        quote,
		Order:        primaryOrder,
		Now:          uc.now(),
	})

	return &domain.WorkflowRecord{
		Status:              status,
		StatusLabel:         status.Label(),
		Solicitation:        sol,
		Quote:               quote,
		PrimaryOrder:        primaryOrder,
		LinkedOrders:        linkedOrders,
		LinkedSolicitations: linkedSols,
		Fulfillment:         fulfillment,
	}, nil
}

func (uc *WorkflowUseCase) buildFromOrder(ctx context.Context, order *domain.Order) (*domain.WorkflowRecord, error) {
	linkedSols, err := uc.solicitationsLinkedTo(ctx, order)
	if err != nil {
		return nil, err
	}

	if len(linkedSols) == 0 {
		// Orphan order: status delegates entirely to the order itself.
		fulfillment, err := uc.fulfillment.ListByOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("load fulfillment records: %w", err)
		}
		status := uc.engine.Derive(domain.StatusInput{Order: order, Now: uc.now()})
		return &domain.WorkflowRecord{
			Status:              status,
			StatusLabel:         status.Label(),
			PrimaryOrder:        order,
			LinkedOrders:        []domain.Order{*order},
			LinkedSolicitations: []domain.Solicitation{},
			Fulfillment:         fulfillment,
		}, nil
	}

	primarySol := domain.PrimarySolicitation(linkedSols)

	linkedOrders, err := uc.ordersLinkedTo(ctx, primarySol.ID)
	if err != nil {
		return nil, err
	}
	linkedOrders = mergeOrders(linkedOrders, []domain.Order{*order})
	primaryOrder := domain.PrimaryOrder(linkedOrders)

	quote, err := uc.quotes.GetBySolicitation(ctx, primarySol.ID)
	if err != nil {
		return nil, fmt.Errorf("load quote: %w", err)
	}

	var fulfillment []domain.FulfillmentRecord
	if primaryOrder != nil {
		fulfillment, err = uc.fulfillment.ListByOrder(ctx, primaryOrder.ID)
		if err != nil {
			return nil, fmt.Errorf("load fulfillment records: %w", err)
		}
	}

	status := uc.engine.Derive(domain.StatusInput{
		Solicitation: primarySol,
		Quote:        quote,
		Order:        primaryOrder,
		Now:          uc.now(),
	})

	return &domain.WorkflowRecord{
		Status:              status,
		StatusLabel:         status.Label(),
		Solicitation:        primarySol,
		Quote:               quote,
		PrimaryOrder:        primaryOrder,
		LinkedOrders:        linkedOrders,
		LinkedSolicitations: linkedSols,
		Fulfillment:         fulfillment,
	}, nil
}

// ordersLinkedTo merges relation-table rows with legacy-field matches,
// de-duplicated by id.
func (uc *WorkflowUseCase) ordersLinkedTo(ctx context.Context, solicitationID string) ([]domain.Order, error) {
	linked, err := uc.links.OrdersForSolicitation(ctx, solicitationID)
	if err != nil {
		return nil, fmt.Errorf("traverse orders for solicitation: %w", err)
	}
	legacy, err := uc.orders.ListByLegacyRef(ctx, solicitationID)
	if err != nil {
		return nil, fmt.Errorf("list legacy-linked orders: %w", err)
	}
	return mergeOrders(linked, legacy), nil
}

func (uc *WorkflowUseCase) solicitationsLinkedTo(ctx context.Context, order *domain.Order) ([]domain.Solicitation, error) {
	linked, err := uc.links.SolicitationsForOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("traverse solicitations for order: %w", err)
	}
	if order.LegacySolicitationID == "" {
		return linked, nil
	}
	legacy, err := uc.solicitationByID(ctx, order.LegacySolicitationID)
	if err != nil {
		return nil, err
	}
	if legacy == nil {
		// Dangling legacy reference; the relation rows stand on their own.
		return linked, nil
	}
	return mergeSolicitations(linked, []domain.Solicitation{*legacy}), nil
}

func (uc *WorkflowUseCase) solicitationByID(ctx context.Context, id string) (*domain.Solicitation, error) {
	sol, err := uc.solicitations.GetByID(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get solicitation by id: %w", err)
	}
	return sol, nil
}

func (uc *WorkflowUseCase) orderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := uc.orders.GetByID(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

func mergeOrders(base, extra []domain.Order) []domain.Order {
	seen := make(map[string]bool, len(base))
	out := make([]domain.Order, 0, len(base)+len(extra))
	for _, o := range base {
		if !seen[o.ID] {
			seen[o.ID] = true
			out = append(out, o)
		}
	}
	for _, o := range extra {
		if !seen[o.ID] {
			seen[o.ID] = true
			out = append(out, o)
		}
	}
	return out
}

func mergeSolicitations(base, extra []domain.Solicitation) []domain.Solicitation {
	seen := make(map[string]bool, len(base))
	out := make([]domain.Solicitation, 0, len(base)+len(extra))
	for _, s := range base {
		if !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}

func page(records []domain.WorkflowRecord, limit, offset int) []domain.WorkflowRecord {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []domain.WorkflowRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}
