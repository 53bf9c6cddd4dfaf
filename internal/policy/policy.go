// Package policy maps a risk tier to the verification path a transaction
// must complete, plus the tier-independent high-value confirmation gate.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/risk"
)

// Path is the verification route required before a transaction can settle.
type Path string

const (
	PathAutoApprove Path = "auto_approve"
	PathOTP         Path = "otp"
	PathBiometric   Path = "biometric"
)

// DefaultHighValueThreshold is the amount at or above which an explicit
// user confirmation precedes scoring and verification. It is a pre-scoring
// gate, not a scoring input.
var DefaultHighValueThreshold = decimal.NewFromInt(10_000)

// Decision is the required verification for one transaction.
type Decision struct {
	PreConfirmRequired bool `json:"preConfirmRequired"`
	Path               Path `json:"path"`
}

// Required returns the verification path for a tier and amount, using the
// default high-value threshold.
func Required(tier risk.Tier, amount decimal.Decimal) Decision {
	return RequiredWithThreshold(tier, amount, DefaultHighValueThreshold)
}

// RequiredWithThreshold is Required with an explicit high-value threshold,
// for deployments that tune the gate.
func RequiredWithThreshold(tier risk.Tier, amount, highValue decimal.Decimal) Decision {
	d := Decision{
		PreConfirmRequired: amount.GreaterThanOrEqual(highValue),
	}
	switch tier {
	case risk.TierLow:
		d.Path = PathAutoApprove
	case risk.TierMedium:
		d.Path = PathOTP
	default: // HIGH and CRITICAL
		d.Path = PathBiometric
	}
	return d
}
