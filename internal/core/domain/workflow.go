package domain

import "time"

// WorkflowState is the single lifecycle state derived for a business deal.
type WorkflowState string

const (
	StateRFQReceived       WorkflowState = "rfq_received"
	StateResponseDraft     WorkflowState = "response_draft"
	StateResponseSubmitted WorkflowState = "response_submitted"
	StatePOReceived        WorkflowState = "po_received"
	StateInFulfillment     WorkflowState = "in_fulfillment"
	StateVerified          WorkflowState = "verified"
	StateShipped           WorkflowState = "shipped"
	StateNoBid             WorkflowState = "no_bid"
	StateExpired           WorkflowState = "expired"
	StateLost              WorkflowState = "lost"
)

var workflowLabels = map[WorkflowState]string{
	StateRFQReceived:       "RFQ Received",
	StateResponseDraft:     "Response Draft",
	StateResponseSubmitted: "Response Submitted",
	StatePOReceived:        "PO Received",
	StateInFulfillment:     "In Fulfillment",
	StateVerified:          "Verified",
	StateShipped:           "Shipped",
	StateNoBid:             "No Bid",
	StateExpired:           "Expired",
	StateLost:              "Lost",
}

func (s WorkflowState) Label() string {
	if label, ok := workflowLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s WorkflowState) Terminal() bool {
	switch s {
	case StateShipped, StateNoBid, StateExpired, StateLost:
		return true
	}
	return false
}

// ValidWorkflowState reports whether a filter value names a known state.
func ValidWorkflowState(s string) bool {
	_, ok := workflowLabels[WorkflowState(s)]
	return ok
}

// StatusInput is the explicit tagged representation the status engine
// derives from. Order is the primary linked order; additional linked orders
// never influence the computed state.
type StatusInput struct {
	Solicitation *Solicitation
	Quote        *Quote
	Order        *Order
	Now          time.Time
}

// StatusEngine derives one lifecycle state from a deal's documents. It is a
// total, side-effect-free function of its input; LostAfter is the only
// tunable (how long a submitted quote may sit without a PO before the deal
// counts as lost).
type StatusEngine struct {
	LostAfter time.Duration
}

func NewStatusEngine(lostAfter time.Duration) StatusEngine {
	if lostAfter <= 0 {
		lostAfter = 30 * 24 * time.Hour
	}
	return StatusEngine{LostAfter: lostAfter}
}

// Derive evaluates the precedence-ordered rules exactly once, top to
// bottom. Orphan orders (no matched solicitation) delegate entirely to the
// order's own fulfillment mapping.
func (e StatusEngine) Derive(in StatusInput) WorkflowState {
	if in.Solicitation == nil {
		if in.Order != nil {
			return mapFulfillment(in.Order.FulfillmentStatus)
		}
		return StateRFQReceived
	}

	if in.Solicitation.DueDate != nil && in.Solicitation.DueDate.Before(in.Now) && !in.Quote.Submitted() {
		return StateExpired
	}

	if in.Quote == nil {
		return StateRFQReceived
	}

	if in.Quote.NoBid {
		return StateNoBid
	}

	if in.Quote.Status == QuoteDraft {
		return StateResponseDraft
	}

	if in.Quote.Submitted() {
		if in.Order == nil {
			if in.Quote.SubmittedAt != nil && in.Now.Sub(*in.Quote.SubmittedAt) >= e.LostAfter {
				return StateLost
			}
			return StateResponseSubmitted
		}
		return mapFulfillment(in.Order.FulfillmentStatus)
	}

	return StateRFQReceived
}

func mapFulfillment(fs FulfillmentStatus) WorkflowState {
	switch fs {
	case FulfillmentQualitySheetCreated, FulfillmentLabelsGenerated:
		return StateInFulfillment
	case FulfillmentVerified:
		return StateVerified
	case FulfillmentShipped:
		return StateShipped
	default:
		// pending and anything unrecognized: the PO arrived, nothing more.
		return StatePOReceived
	}
}

// WorkflowRecord is the assembled read-side view of one deal. It is derived
// on every read and never persisted or cached as ground truth.
type WorkflowRecord struct {
	Status              WorkflowState       `json:"status"`
	StatusLabel         string              `json:"status_label"`
	Solicitation        *Solicitation       `json:"solicitation,omitempty"`
	Quote               *Quote              `json:"quote,omitempty"`
	PrimaryOrder        *Order              `json:"primary_order,omitempty"`
	LinkedOrders        []Order             `json:"linked_orders"`
	LinkedSolicitations []Solicitation      `json:"linked_solicitations"`
	Fulfillment         []FulfillmentRecord `json:"fulfillment,omitempty"`
}

// RecencyKey is the timestamp workflows are listed by: the most recent
// non-null of order received, quote submitted, solicitation received.
func (r WorkflowRecord) RecencyKey() time.Time {
	var key time.Time
	if r.PrimaryOrder != nil && r.PrimaryOrder.ReceivedAt.After(key) {
		key = r.PrimaryOrder.ReceivedAt
	}
	if r.Quote != nil && r.Quote.SubmittedAt != nil && r.Quote.SubmittedAt.After(key) {
		key = *r.Quote.SubmittedAt
	}
	if r.Solicitation != nil && r.Solicitation.ReceivedAt.After(key) {
		key = r.Solicitation.ReceivedAt
	}
	return key
}
