package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type LinkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Link inserts the pair, doing nothing on conflict. The returned bool
// reports whether a new row landed.
func (r *LinkRepository) Link(ctx context.Context, orderID, solicitationID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO document_links (order_id, solicitation_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (order_id, solicitation_id) DO NOTHING
`, orderID, solicitationID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert document link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("document link rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *LinkRepository) Exists(ctx context.Context, orderID, solicitationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM document_links WHERE order_id = $1 AND solicitation_id = $2
)
`, orderID, solicitationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe document link: %w", err)
	}
	return exists, nil
}

func (r *LinkRepository) OrdersForSolicitation(ctx context.Context, solicitationID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT o.id, o.order_number, o.solicitation_number, o.status, o.fulfillment_status, o.legacy_solicitation_id, o.received_at, o.filename, o.storage_path, o.fields, o.provenance, o.error_message, o.created_at, o.updated_at
FROM document_links l
JOIN orders o ON o.id = l.order_id
WHERE l.solicitation_id = $1
ORDER BY o.created_at
`, solicitationID)
	if err != nil {
		return nil, fmt.Errorf("orders for solicitation: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *LinkRepository) SolicitationsForOrder(ctx context.Context, orderID string) ([]domain.Solicitation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.solicitation_number, s.status, s.due_date, s.received_at, s.filename, s.storage_path, s.fields, s.provenance, s.error_message, s.created_at, s.updated_at
FROM document_links l
JOIN solicitations s ON s.id = l.solicitation_id
WHERE l.order_id = $1
ORDER BY s.created_at
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("solicitations for order: %w", err)
	}
	defer rows.Close()

	return collectSolicitations(rows)
}
