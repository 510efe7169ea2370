package domain

import "time"

type DocumentKind string

const (
	KindSolicitation DocumentKind = "solicitation"
	KindOrder        DocumentKind = "order"
)

// DocumentStatus tracks a document's own extraction lifecycle, independent
// of the workflow state derived across documents.
type DocumentStatus string

const (
	StatusUploaded         DocumentStatus = "uploaded"
	StatusProcessing       DocumentStatus = "processing"
	StatusProcessed        DocumentStatus = "processed"
	StatusFailed           DocumentStatus = "failed"
	StatusExtractionFailed DocumentStatus = "extraction_failed"
)

// Provenance records where an ingested document came from. ExternalMessageID
// is the upstream mail system's opaque message id; at most one document of
// either kind may be attributed to a given id.
type Provenance struct {
	ExternalMessageID string    `json:"external_message_id"`
	Sender            string    `json:"sender,omitempty"`
	Subject           string    `json:"subject,omitempty"`
	ReceivedTime      time.Time `json:"received_time"`
}

// ExtractedFields is the structured output of the external field extractor.
// Raw carries everything the extractor returned; the named fields are the
// ones reconciliation keys on.
type ExtractedFields struct {
	SolicitationNumber string            `json:"solicitation_number,omitempty"`
	OrderNumber        string            `json:"order_number,omitempty"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	Raw                map[string]string `json:"raw,omitempty"`
}

type Solicitation struct {
	ID                 string          `json:"id"`
	SolicitationNumber string          `json:"solicitation_number,omitempty"`
	Status             DocumentStatus  `json:"status"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	ReceivedAt         time.Time       `json:"received_at"`
	Filename           string          `json:"filename"`
	StoragePath        string          `json:"storage_path"`
	Fields             ExtractedFields `json:"fields"`
	Provenance         Provenance      `json:"provenance"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// FulfillmentStatus is the purchase order's coarse progress through
// fulfillment, fed by quality sheet and label records.
type FulfillmentStatus string

const (
	FulfillmentPending             FulfillmentStatus = "pending"
	FulfillmentQualitySheetCreated FulfillmentStatus = "quality_sheet_created"
	FulfillmentLabelsGenerated     FulfillmentStatus = "labels_generated"
	FulfillmentVerified            FulfillmentStatus = "verified"
	FulfillmentShipped             FulfillmentStatus = "shipped"
)

type Order struct {
	ID                 string            `json:"id"`
	OrderNumber        string            `json:"order_number,omitempty"`
	SolicitationNumber string            `json:"solicitation_number,omitempty"`
	Status             DocumentStatus    `json:"status"`
	FulfillmentStatus  FulfillmentStatus `json:"fulfillment_status"`
	// LegacySolicitationID is the pre-relation direct reference. Read-only
	// provenance; document_links is the source of truth.
	LegacySolicitationID string          `json:"legacy_solicitation_id,omitempty"`
	ReceivedAt           time.Time       `json:"received_at"`
	Filename             string          `json:"filename"`
	StoragePath          string          `json:"storage_path"`
	Fields               ExtractedFields `json:"fields"`
	Provenance           Provenance      `json:"provenance"`
	Error                string          `json:"error,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PrimaryOrder picks the order that drives workflow status when a
// solicitation has several linked orders: the most recently created one.
func PrimaryOrder(orders []Order) *Order {
	var primary *Order
	for i := range orders {
		if primary == nil || orders[i].CreatedAt.After(primary.CreatedAt) {
			primary = &orders[i]
		}
	}
	return primary
}

// PrimarySolicitation applies the same recency rule on the other side of
// the relation.
func PrimarySolicitation(sols []Solicitation) *Solicitation {
	var primary *Solicitation
	for i := range sols {
		if primary == nil || sols[i].CreatedAt.After(primary.CreatedAt) {
			primary = &sols[i]
		}
	}
	return primary
}
