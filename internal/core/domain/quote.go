package domain

import "time"

type QuoteStatus string

const (
	QuoteDraft     QuoteStatus = "draft"
	QuoteCompleted QuoteStatus = "completed"
	QuoteSubmitted QuoteStatus = "submitted"
)

// Quote is the response prepared against a solicitation. At most one exists
// per solicitation. NoBid is an explicit decision not to quote, recorded
// here rather than inferred from absence.
type Quote struct {
	ID             string      `json:"id"`
	SolicitationID string      `json:"solicitation_id"`
	Status         QuoteStatus `json:"status"`
	NoBid          bool        `json:"no_bid"`
	SubmittedAt    *time.Time  `json:"submitted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Submitted reports whether the quote has actually gone out the door.
func (q *Quote) Submitted() bool {
	if q == nil {
		return false
	}
	return q.Status == QuoteSubmitted || q.Status == QuoteCompleted
}
