package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

const pgUniqueViolation = "23505"

// isUniqueViolation detects the storage-level guard firing: a second
// document racing to claim the same external message id.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type SolicitationRepository struct {
	db *sql.DB
}

func NewSolicitationRepository(db *sql.DB) *SolicitationRepository {
	return &SolicitationRepository{db: db}
}

const solicitationColumns = `id, solicitation_number, status, due_date, received_at, filename, storage_path, fields, provenance, error_message, created_at, updated_at`

func (r *SolicitationRepository) Create(ctx context.Context, s *domain.Solicitation) error {
	fieldsJSON, err := json.Marshal(s.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	provenanceJSON, err := json.Marshal(s.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO solicitations (
	id, solicitation_number, status, due_date, received_at, filename, storage_path, fields, provenance, external_message_id, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		s.ID, nullString(s.SolicitationNumber), string(s.Status), s.DueDate, s.ReceivedAt,
		s.Filename, s.StoragePath, fieldsJSON, provenanceJSON,
		nullString(s.Provenance.ExternalMessageID), s.Error, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrDuplicateMessage, "insert solicitation", err)
		}
		return fmt.Errorf("insert solicitation: %w", err)
	}
	return nil
}

func (r *SolicitationRepository) GetByID(ctx context.Context, id string) (*domain.Solicitation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+solicitationColumns+`
FROM solicitations
WHERE id = $1
`, id)

	s, err := scanSolicitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get solicitation", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan solicitation: %w", err)
	}
	return s, nil
}

func (r *SolicitationRepository) FindByNumber(ctx context.Context, number string) (*domain.Solicitation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+solicitationColumns+`
FROM solicitations
WHERE solicitation_number = $1
ORDER BY created_at DESC
LIMIT 1
`, number)

	s, err := scanSolicitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find solicitation by number: %w", err)
	}
	return s, nil
}

func (r *SolicitationRepository) FindByExternalMessageID(ctx context.Context, externalID string) (*domain.Solicitation, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+solicitationColumns+`
FROM solicitations
WHERE external_message_id = $1
`, externalID)

	s, err := scanSolicitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find solicitation by external id: %w", err)
	}
	return s, nil
}

func (r *SolicitationRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE solicitations
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update solicitation status: %w", err)
	}
	return nil
}

func (r *SolicitationRepository) SaveFields(ctx context.Context, id string, fields domain.ExtractedFields) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE solicitations
SET fields = $2, solicitation_number = COALESCE($3, solicitation_number), due_date = COALESCE($4, due_date), updated_at = $5
WHERE id = $1
`, id, fieldsJSON, nullString(fields.SolicitationNumber), fields.DueDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save solicitation fields: %w", err)
	}
	return nil
}

func (r *SolicitationRepository) List(ctx context.Context) ([]domain.Solicitation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+solicitationColumns+`
FROM solicitations
ORDER BY received_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list solicitations: %w", err)
	}
	defer rows.Close()

	return collectSolicitations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSolicitation(row rowScanner) (*domain.Solicitation, error) {
	var (
		s             domain.Solicitation
		number        sql.NullString
		status        string
		dueDate       sql.NullTime
		fieldsRaw     []byte
		provenanceRaw []byte
	)

	err := row.Scan(
		&s.ID, &number, &status, &dueDate, &s.ReceivedAt, &s.Filename, &s.StoragePath,
		&fieldsRaw, &provenanceRaw, &s.Error, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(fieldsRaw, &s.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(provenanceRaw, &s.Provenance); err != nil {
		return nil, fmt.Errorf("unmarshal provenance: %w", err)
	}
	s.SolicitationNumber = number.String
	s.Status = domain.DocumentStatus(status)
	if dueDate.Valid {
		due := dueDate.Time
		s.DueDate = &due
	}
	return &s, nil
}

func collectSolicitations(rows *sql.Rows) ([]domain.Solicitation, error) {
	var out []domain.Solicitation
	for rows.Next() {
		s, err := scanSolicitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan solicitation row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solicitation rows: %w", err)
	}
	return out, nil
}
