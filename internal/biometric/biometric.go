// Package biometric compares a live capture against an account's enrolled
// reference vectors.
//
// The verifier owns the decision logic: capture-quality pre-check, the hard
// declared-attribute gate, tier- and account-age-adjusted thresholds, and
// the max-cosine-similarity decision. Embedding, similarity, and attribute
// classification live behind Provider so the shipped rules-based simulation
// can be swapped for a real model without touching any of that logic.
package biometric

import (
	"errors"

	"github.com/dhruvm848/sentinel/internal/account"
)

var (
	// ErrNoProvider is returned when the verifier was built without a
	// similarity provider.
	ErrNoProvider = errors.New("biometric: no similarity provider configured")
)

// Provider computes feature vectors and similarity for capture payloads.
type Provider interface {
	// Embed reduces a capture to a fixed-length feature vector.
	Embed(sample []byte) ([]float64, error)
	// Similarity returns the cosine similarity of two vectors, in [-1,1].
	Similarity(a, b []float64) float64
	// Classify returns the capture's apparent declared attribute, or
	// AttributeUnknown when it cannot be determined.
	Classify(sample []byte) account.Attribute
}

// Result is the outcome of one verification attempt. It is ephemeral: only
// the terminal transaction status and any incident record outlive it.
type Result struct {
	Match              bool    `json:"match"`
	BestSimilarity     float64 `json:"bestSimilarity"`
	Threshold          float64 `json:"threshold"`
	ReferencesCompared int     `json:"referencesCompared"`
	Reason             string  `json:"reason"`
}
