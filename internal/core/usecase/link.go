package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
	"github.com/andretaki/simurgh-sub002/internal/core/ports"
)

// LinkDocumentsUseCase maintains the order<->solicitation relation. The
// relation table is the single source of truth; the legacy direct reference
// on orders is reconciled into it and never contradicted.
type LinkDocumentsUseCase struct {
	links         ports.LinkRepository
	orders        ports.OrderRepository
	solicitations ports.SolicitationRepository
	onCreated     func()
}

func NewLinkDocumentsUseCase(
	links ports.LinkRepository,
	orders ports.OrderRepository,
	solicitations ports.SolicitationRepository,
) *LinkDocumentsUseCase {
	return &LinkDocumentsUseCase{
		links:         links,
		orders:        orders,
		solicitations: solicitations,
	}
}

// OnLinkCreated registers a callback fired once per newly created relation
// row. Repeat links never fire it. The worker hangs its link counter here
// so the core stays free of metrics types.
func (uc *LinkDocumentsUseCase) OnLinkCreated(fn func()) {
	uc.onCreated = fn
}

func (uc *LinkDocumentsUseCase) notifyCreated() {
	if uc.onCreated != nil {
		uc.onCreated()
	}
}

// Link records the pair, tolerating repeats.
func (uc *LinkDocumentsUseCase) Link(ctx context.Context, orderID, solicitationID string) error {
	created, err := uc.links.Link(ctx, orderID, solicitationID)
	if err != nil {
		return fmt.Errorf("link order %s to solicitation %s: %w", orderID, solicitationID, err)
	}
	if created {
		uc.notifyCreated()
	}
	return nil
}

// MatchOrder attaches an order to its solicitation by exact equality on the
// extracted solicitation number. No fuzzy matching; an order with no match
// stays an orphan until a later backfill or a matching solicitation
// arrives.
func (uc *LinkDocumentsUseCase) MatchOrder(ctx context.Context, order *domain.Order) error {
	number := strings.TrimSpace(order.SolicitationNumber)
	if number == "" {
		return nil
	}
	sol, err := uc.solicitations.FindByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("find solicitation %q: %w", number, err)
	}
	if sol == nil {
		// Permanently unresolvable for now: logged, skipped, not retried.
		slog.Info("no solicitation for order reference",
			"order_id", order.ID,
			"solicitation_number", number,
		)
		return nil
	}
	return uc.Link(ctx, order.ID, sol.ID)
}

// ResolveLegacyLink synthesizes a relation row from the legacy direct
// reference when the pair is missing. The legacy field itself is left
// untouched as provenance.
func (uc *LinkDocumentsUseCase) ResolveLegacyLink(ctx context.Context, order *domain.Order) (bool, error) {
	if order.LegacySolicitationID == "" {
		return false, nil
	}
	exists, err := uc.links.Exists(ctx, order.ID, order.LegacySolicitationID)
	if err != nil {
		return false, fmt.Errorf("probe link: %w", err)
	}
	if exists {
		return false, nil
	}
	created, err := uc.links.Link(ctx, order.ID, order.LegacySolicitationID)
	if err != nil {
		return false, fmt.Errorf("synthesize legacy link: %w", err)
	}
	if created {
		uc.notifyCreated()
	}
	return created, nil
}

// BackfillLegacyLinks reconciles every order still carrying a legacy
// reference. This is the explicit repair operation; reads never do it.
func (uc *LinkDocumentsUseCase) BackfillLegacyLinks(ctx context.Context) (int, error) {
	orders, err := uc.orders.ListWithLegacyRef(ctx)
	if err != nil {
		return 0, fmt.Errorf("list orders with legacy reference: %w", err)
	}

	synthesized := 0
	for i := range orders {
		created, err := uc.ResolveLegacyLink(ctx, &orders[i])
		if err != nil {
			// Bad reference targets are skipped, not retried.
			slog.Warn("legacy link reconciliation failed",
				"order_id", orders[i].ID,
				"legacy_solicitation_id", orders[i].LegacySolicitationID,
				"error", err,
			)
			continue
		}
		if created {
			synthesized++
		}
	}
	return synthesized, nil
}
