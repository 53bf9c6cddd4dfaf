// Package risk scores proposed transactions for fraud risk.
//
// Scoring is additive over independent signals: category amount bands,
// same-day repeat recipients, behavioral anomalies against the account's
// profile, geolocation consistency, and account standing. The total is
// clamped to [0,100] and mapped to a discrete tier. Every contributing
// signal leaves a rationale line so each score is auditable after the fact.
package risk

import (
	"context"
	"time"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/profile"
	"github.com/dhruvm848/sentinel/internal/velocity"
)

// Tier is the discrete risk classification derived from a score.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Tier thresholds. The four-tier scheme: <=40 LOW, 41-70 MEDIUM,
// 71-90 HIGH, >90 CRITICAL.
const (
	lowMax    = 40
	mediumMax = 70
	highMax   = 90
)

// TierForScore maps a clamped score to its tier.
func TierForScore(score int) Tier {
	switch {
	case score <= lowMax:
		return TierLow
	case score <= mediumMax:
		return TierMedium
	case score <= highMax:
		return TierHigh
	default:
		return TierCritical
	}
}

// LocationStatus is the outcome of the device-location lookup at
// submission time.
type LocationStatus string

const (
	LocationSuccess     LocationStatus = "SUCCESS"
	LocationDenied      LocationStatus = "DENIED"
	LocationUnavailable LocationStatus = "UNAVAILABLE"
	LocationPending     LocationStatus = "PENDING"
)

// Input carries everything the engine needs to score one transaction.
// All fields are read-only snapshots; scoring has no side effects beyond
// the best-effort audit record.
type Input struct {
	Transaction   *ledger.Transaction // proposed, not yet persisted
	Account       *account.Account
	Profile       *profile.Profile
	Velocity      velocity.Totals
	Location      LocationStatus // zero value is treated as UNAVAILABLE
	City          string         // resolved city when Location is SUCCESS
	TypicalCities []string       // account's top-3 cities by frequency
	History       []*ledger.Transaction
	Now           time.Time
}

// Assessment is the result of scoring a single transaction.
type Assessment struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	AccountID     string    `json:"accountId"`
	Score         int       `json:"score"`
	Tier          Tier      `json:"tier"`
	Rationale     []string  `json:"rationale"`
	EvaluatedAt   time.Time `json:"evaluatedAt"`
}

// Store persists assessments for the audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error)
}
