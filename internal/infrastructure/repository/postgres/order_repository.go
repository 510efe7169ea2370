package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, order_number, solicitation_number, status, fulfillment_status, legacy_solicitation_id, received_at, filename, storage_path, fields, provenance, error_message, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	fieldsJSON, err := json.Marshal(o.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	provenanceJSON, err := json.Marshal(o.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO orders (
	id, order_number, solicitation_number, status, fulfillment_status, legacy_solicitation_id, received_at, filename, storage_path, fields, provenance, external_message_id, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		o.ID, nullString(o.OrderNumber), nullString(o.SolicitationNumber), string(o.Status),
		string(o.FulfillmentStatus), nullString(o.LegacySolicitationID), o.ReceivedAt,
		o.Filename, o.StoragePath, fieldsJSON, provenanceJSON,
		nullString(o.Provenance.ExternalMessageID), o.Error, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateMessage, "insert order", err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE id = $1
`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get order", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE order_number = $1
ORDER BY created_at DESC
LIMIT 1
`, number)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by number: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) FindByExternalMessageID(ctx context.Context, externalID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE external_message_id = $1
`, externalID)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by external id: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE orders
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *OrderRepository) SaveFields(ctx context.Context, id string, fields domain.ExtractedFields) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE orders
SET fields = $2, order_number = COALESCE($3, order_number), solicitation_number = COALESCE($4, solicitation_number), updated_at = $5
WHERE id = $1
`, id, fieldsJSON, nullString(fields.OrderNumber), nullString(fields.SolicitationNumber), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save order fields: %w", err)
	}
	return nil
}

func (r *OrderRepository) UpdateFulfillmentStatus(ctx context.Context, id string, status domain.FulfillmentStatus) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE orders
SET fulfillment_status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update fulfillment status: %w", err)
	}
	return nil
}

func (r *OrderRepository) ListOrphans(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+orderColumns+`
FROM orders o
WHERE o.legacy_solicitation_id IS NULL
  AND NOT EXISTS (SELECT 1 FROM document_links l WHERE l.order_id = o.id)
ORDER BY o.received_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list orphan orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *OrderRepository) ListWithLegacyRef(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE legacy_solicitation_id IS NOT NULL
ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list orders with legacy ref: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *OrderRepository) ListByLegacyRef(ctx context.Context, solicitationID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+orderColumns+`
FROM orders
WHERE legacy_solicitation_id = $1
ORDER BY created_at
`, solicitationID)
	if err != nil {
		return nil, fmt.Errorf("list orders by legacy ref: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o             domain.Order
		orderNumber   sql.NullString
		solNumber     sql.NullString
		status        string
		fulfillment   string
		legacyRef     sql.NullString
		fieldsRaw     []byte
		provenanceRaw []byte
	)

	err := row.Scan(
		&o.ID, &orderNumber, &solNumber, &status, &fulfillment, &legacyRef, &o.ReceivedAt,
		&o.Filename, &o.StoragePath, &fieldsRaw, &provenanceRaw, &o.Error, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsRaw, &o.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(provenanceRaw, &o.Provenance); err != nil {
		return nil, fmt.Errorf("unmarshal provenance: %w", err)
	}
	o.OrderNumber = orderNumber.String
	o.SolicitationNumber = solNumber.String
	o.Status = domain.DocumentStatus(status)
	o.FulfillmentStatus = domain.FulfillmentStatus(fulfillment)
	o.LegacySolicitationID = legacyRef.String
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return out, nil
}
