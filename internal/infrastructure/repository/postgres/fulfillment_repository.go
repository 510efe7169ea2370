package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type FulfillmentRepository struct {
	db *sql.DB
}

func NewFulfillmentRepository(db *sql.DB) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

func (r *FulfillmentRepository) Add(ctx context.Context, rec *domain.FulfillmentRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO fulfillment_records (id, order_id, kind, storage_path, created_at)
VALUES ($1,$2,$3,$4,$5)
`, rec.ID, rec.OrderID, string(rec.Kind), rec.StoragePath, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fulfillment record: %w", err)
	}
	return nil
}

func (r *FulfillmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, order_id, kind, storage_path, created_at
FROM fulfillment_records
WHERE order_id = $1
ORDER BY created_at
`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list fulfillment records: %w", err)
	}
	defer rows.Close()

	var out []domain.FulfillmentRecord
	for rows.Next() {
		var (
			rec         domain.FulfillmentRecord
			kind        string
			storagePath sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OrderID, &kind, &storagePath, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fulfillment record: %w", err)
		}
		rec.Kind = domain.FulfillmentKind(kind)
		rec.StoragePath = storagePath.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fulfillment records: %w", err)
	}
	return out, nil
}
