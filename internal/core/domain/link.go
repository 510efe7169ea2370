package domain

import "time"

// DocumentLink records that an order was issued against a solicitation.
// The pair is unique; inserting it twice is a no-op.
type DocumentLink struct {
	OrderID        string    `json:"order_id"`
	SolicitationID string    `json:"solicitation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type FulfillmentKind string

const (
	FulfillmentQualitySheet FulfillmentKind = "quality_sheet"
	FulfillmentLabel        FulfillmentKind = "label"
)

// FulfillmentRecord is a quality sheet or shipping label attached to an
// order. Its presence feeds the order's coarse fulfillment status.
type FulfillmentRecord struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Kind        FulfillmentKind `json:"kind"`
	StoragePath string          `json:"storage_path,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
