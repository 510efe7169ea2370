package ports

import (
	"context"
	"io"
	"time"

	"github.com/andretaki/simurgh-sub002/internal/core/domain"
)

// SolicitationRepository persists RFQ documents. FindByExternalMessageID
// returns nil without error when nothing matches; Create maps a storage
// uniqueness violation on the external message id to
// domain.ErrDuplicateMessage.
type SolicitationRepository interface {
	Create(ctx context.Context, s *domain.Solicitation) error
	GetByID(ctx context.Context, id string) (*domain.Solicitation, error)
	FindByNumber(ctx context.Context, number string) (*domain.Solicitation, error)
	FindByExternalMessageID(ctx context.Context, externalID string) (*domain.Solicitation, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveFields(ctx context.Context, id string, fields domain.ExtractedFields) error
	List(ctx context.Context) ([]domain.Solicitation, error)
}

// OrderRepository persists purchase order documents with the same
// duplicate-mapping contract as SolicitationRepository.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	FindByNumber(ctx context.Context, number string) (*domain.Order, error)
	FindByExternalMessageID(ctx context.Context, externalID string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveFields(ctx context.Context, id string, fields domain.ExtractedFields) error
	UpdateFulfillmentStatus(ctx context.Context, id string, status domain.FulfillmentStatus) error
	// ListOrphans returns orders with neither a relation row nor a legacy
	// solicitation reference.
	ListOrphans(ctx context.Context) ([]domain.Order, error)
	// ListWithLegacyRef returns orders still carrying the legacy direct
	// reference, for explicit backfill.
	ListWithLegacyRef(ctx context.Context) ([]domain.Order, error)
	ListByLegacyRef(ctx context.Context, solicitationID string) ([]domain.Order, error)
}

// LinkRepository maintains the order<->solicitation relation. Link reports
// whether a row was actually inserted; re-linking an existing pair is a
// no-op, never an error.
type LinkRepository interface {
	Link(ctx context.Context, orderID, solicitationID string) (bool, error)
	Exists(ctx context.Context, orderID, solicitationID string) (bool, error)
	OrdersForSolicitation(ctx context.Context, solicitationID string) ([]domain.Order, error)
	SolicitationsForOrder(ctx context.Context, orderID string) ([]domain.Solicitation, error)
}

// QuoteRepository reads and writes quote responses. GetBySolicitation
// returns nil without error when no quote exists yet.
type QuoteRepository interface {
	GetBySolicitation(ctx context.Context, solicitationID string) (*domain.Quote, error)
	Save(ctx context.Context, q *domain.Quote) error
}

// FulfillmentRepository stores quality sheets and labels per order.
type FulfillmentRepository interface {
	Add(ctx context.Context, rec *domain.FulfillmentRecord) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.FulfillmentRecord, error)
}

// CheckpointStore durably tracks ingestion progress per source. Writes are
// last-writer-wins; they happen only at batch completion.
type CheckpointStore interface {
	Get(ctx context.Context, source string) (domain.IngestionCheckpoint, error)
	RecordSuccess(ctx context.Context, source string, processedUpTo *domain.ProcessedMarker) error
	RecordFailure(ctx context.Context, source string, reason string) error
}

// MailAttachment is one file on an upstream message.
type MailAttachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// MailMessage is the metadata+attachments view of one upstream message.
type MailMessage struct {
	ID          string
	Sender      string
	Subject     string
	ReceivedAt  time.Time
	Attachments []MailAttachment
}

// MailMessageRef is a lightweight listing entry.
type MailMessageRef struct {
	ID         string
	ReceivedAt time.Time
}

// MailClient is the narrow contract against the upstream mail system.
type MailClient interface {
	ListMessagesSince(ctx context.Context, since time.Time) ([]MailMessageRef, error)
	GetMessage(ctx context.Context, messageID string) (*MailMessage, error)
	MarkRead(ctx context.Context, messageID string) error
}

// TextExtractor pulls plain text out of stored document bytes.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// FieldExtractor calls the external AI service that turns document text
// into structured fields. Permanent extraction failures carry
// domain.ErrExtraction; transient upstream trouble carries
// domain.ErrTemporary.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, kind domain.DocumentKind, text string) (domain.ExtractedFields, error)
}

// ObjectStorage stores source document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries document-received events from the api to the worker.
type MessageQueue interface {
	PublishDocumentReceived(ctx context.Context, kind domain.DocumentKind, documentID string) error
	SubscribeDocumentReceived(ctx context.Context, handler func(ctx context.Context, kind domain.DocumentKind, documentID string) error) error
}
