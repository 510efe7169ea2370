package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

type QuoteRepository struct {
	db *sql.DB
}

func NewQuoteRepository(db *sql.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

func (r *QuoteRepository) GetBySolicitation(ctx context.Context, solicitationID string) (*domain.Quote, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, solicitation_id, status, no_bid, submitted_at, created_at, updated_at
FROM quotes
WHERE solicitation_id = $1
`, solicitationID)

	var (
		q           domain.Quote
		status      string
		submittedAt sql.NullTime
	)
	err := row.Scan(&q.ID, &q.SolicitationID, &status, &q.NoBid, &submittedAt, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan quote: %w", err)
	}
	q.Status = domain.QuoteStatus(status)
	if submittedAt.Valid {
		t := submittedAt.Time
		q.SubmittedAt = &t
	}
	return &q, nil
}

// Save upserts on the one-quote-per-solicitation constraint.
func (r *QuoteRepository) Save(ctx context.Context, q *domain.Quote) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO quotes (id, solicitation_id, status, no_bid, submitted_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (solicitation_id) DO UPDATE
SET status = EXCLUDED.status,
    no_bid = EXCLUDED.no_bid,
    submitted_at = EXCLUDED.submitted_at,
    updated_at = EXCLUDED.updated_at
`, q.ID, q.SolicitationID, string(q.Status), q.NoBid, q.SubmittedAt, q.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save quote: %w", err)
	}
	return nil
}
