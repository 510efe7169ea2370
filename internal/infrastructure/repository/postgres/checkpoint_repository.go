package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

// CheckpointRepository stores one row per ingestion source. Checkpoints are
// first-class rows here, never mixed into the document tables, and writes
// are last-writer-wins upserts.
type CheckpointRepository struct {
	db *sql.DB
}

func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get returns a zero-valued checkpoint when the source has never run.
func (r *CheckpointRepository) Get(ctx context.Context, source string) (domain.IngestionCheckpoint, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT source, last_successful_run, last_attempted_run, consecutive_failures, last_processed_external_id, last_processed_external_date
FROM ingestion_checkpoints
WHERE source = $1
`, source)

	var (
		cp          domain.IngestionCheckpoint
		lastSuccess sql.NullTime
		lastAttempt sql.NullTime
		lastExtID   sql.NullString
		lastExtDate sql.NullTime
	)
	err := row.Scan(&cp.Source, &lastSuccess, &lastAttempt, &cp.ConsecutiveFailures, &lastExtID, &lastExtDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.IngestionCheckpoint{Source: source}, nil
		}
		return domain.IngestionCheckpoint{}, fmt.Errorf("scan checkpoint: %w", err)
	}

	if lastSuccess.Valid {
		t := lastSuccess.Time
		cp.LastSuccessfulRun = &t
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		cp.LastAttemptedRun = &t
	}
	cp.LastProcessedExternalID = lastExtID.String
	if lastExtDate.Valid {
		t := lastExtDate.Time
		cp.LastProcessedExternalDate = &t
	}
	return cp, nil
}

// RecordSuccess resets the failure counter and, when a marker is supplied,
// advances the last-processed message fields.
func (r *CheckpointRepository) RecordSuccess(ctx context.Context, source string, processedUpTo *domain.ProcessedMarker) error {
	now := time.Now().UTC()
	var extID any
	var extDate any
	if processedUpTo != nil {
		extID = processedUpTo.ExternalID
		extDate = processedUpTo.ExternalDate
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_checkpoints (
	source, last_successful_run, last_attempted_run, consecutive_failures, last_processed_external_id, last_processed_external_date, updated_at
) VALUES ($1,$2,$2,0,$3,$4,$2)
ON CONFLICT (source) DO UPDATE
SET last_successful_run = EXCLUDED.last_successful_run,
    last_attempted_run = EXCLUDED.last_attempted_run,
    consecutive_failures = 0,
    last_processed_external_id = COALESCE(EXCLUDED.last_processed_external_id, ingestion_checkpoints.last_processed_external_id),
    last_processed_external_date = COALESCE(EXCLUDED.last_processed_external_date, ingestion_checkpoints.last_processed_external_date),
    last_failure_reason = NULL,
    updated_at = EXCLUDED.updated_at
`, source, now, extID, extDate)
	if err != nil {
		return fmt.Errorf("record checkpoint success: %w", err)
	}
	return nil
}

// RecordFailure bumps the failure counter without touching success state.
func (r *CheckpointRepository) RecordFailure(ctx context.Context, source string, reason string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingestion_checkpoints (
	source, last_attempted_run, consecutive_failures, last_failure_reason, updated_at
) VALUES ($1,$2,1,$3,$2)
ON CONFLICT (source) DO UPDATE
SET last_attempted_run = EXCLUDED.last_attempted_run,
    consecutive_failures = ingestion_checkpoints.consecutive_failures + 1,
    last_failure_reason = EXCLUDED.last_failure_reason,
    updated_at = EXCLUDED.updated_at
`, source, now, reason)
	if err != nil {
		return fmt.Errorf("record checkpoint failure: %w", err)
	}
	return nil
}
