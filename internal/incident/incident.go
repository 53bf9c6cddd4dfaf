// Package incident records failed biometric verifications for human review.
package incident

import (
	"context"
	"errors"
	"time"
)

var ErrIncidentNotFound = errors.New("incident not found")

// ReviewStatus tracks where an incident sits in the review queue. It is
// mutated exclusively by human reviewers through the admin surface; the
// verification workflow only ever creates incidents.
type ReviewStatus string

const (
	StatusPendingReview ReviewStatus = "PENDING_REVIEW"
	StatusEscalated     ReviewStatus = "ESCALATED"
	StatusResolved      ReviewStatus = "RESOLVED"
)

// ValidReviewStatus reports whether s is a known review status.
func ValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case StatusPendingReview, StatusEscalated, StatusResolved:
		return true
	}
	return false
}

// Incident is a recorded failed-verification event. Capture is a snapshot
// of the failing payload for the reviewer.
type Incident struct {
	ID            string       `json:"id"`
	AccountID     string       `json:"accountId"`
	TransactionID string       `json:"transactionId,omitempty"`
	Capture       []byte       `json:"-"`
	Reason        string       `json:"reason"`
	Status        ReviewStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Store persists incidents.
type Store interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	ListByStatus(ctx context.Context, status ReviewStatus, limit int) ([]*Incident, error)
	UpdateStatus(ctx context.Context, id string, status ReviewStatus) error
}
