// Package account holds the account record, its enrolled biometric
// references, and the identity-store contract.
//
// Status transitions are one-directional from the verification workflow's
// point of view: a failed verification blocks the account, and nothing in
// this codebase silently reactivates it. Reactivation is an administrative
// action performed against the store directly.
package account

import (
	"context"
	"errors"
	"time"
)

var ErrAccountNotFound = errors.New("account not found")

// Status is the account's standing on the platform.
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusBlocked     Status = "BLOCKED"
	StatusUnderReview Status = "UNDER_REVIEW"
)

// Attribute is the account holder's declared biometric attribute, used by
// the verifier's hard mismatch gate. Unknown never triggers the gate.
type Attribute string

const (
	AttributeMale    Attribute = "male"
	AttributeFemale  Attribute = "female"
	AttributeUnknown Attribute = ""
)

// Known reports whether the attribute is declared and non-neutral.
func (a Attribute) Known() bool {
	return a == AttributeMale || a == AttributeFemale
}

// Account is the identity-store view of an account holder.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Attribute Attribute `json:"attribute,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// References are the enrolled biometric feature vectors. Enrollment
	// happens outside this core; the verifier only reads them.
	References [][]float64 `json:"-"`
}

// AgeAtLeast reports whether the account is at least d old at the given time.
func (a *Account) AgeAtLeast(d time.Duration, now time.Time) bool {
	return now.Sub(a.CreatedAt) >= d
}

// Store is the identity-store contract the workflow consumes.
type Store interface {
	Get(ctx context.Context, id string) (*Account, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
