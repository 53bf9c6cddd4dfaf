package biometric

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/risk"
)

// Threshold parameters. Higher transaction risk and younger accounts demand
// closer matches; the final threshold never exceeds thresholdCap.
const (
	baseThreshold     = 0.90
	mediumThreshold   = 0.925
	highThreshold     = 0.95
	youngAccountBonus = 0.02
	thresholdCap      = 0.99

	youngAccountAge = 7 * 24 * time.Hour
)

// Degenerate-capture detection: a capture whose sampled bytes are
// overwhelmingly near-black is a covered or blank frame.
const (
	darkByteMax   = 16
	darkFraction  = 0.9
	sampleStride  = 7
	minSampleSize = 64
)

// Verifier decides whether a live capture matches an enrolled account.
type Verifier struct {
	provider Provider
	logger   *slog.Logger
}

// NewVerifier creates a verifier using the given similarity provider.
func NewVerifier(provider Provider) *Verifier {
	return &Verifier{provider: provider, logger: slog.Default()}
}

// WithLogger sets a structured logger.
func (v *Verifier) WithLogger(l *slog.Logger) *Verifier {
	v.logger = l
	return v
}

// Verify compares the live capture against the account's enrolled
// references. tier adjusts the required similarity; pass risk.TierLow when
// no transaction is associated. The returned Result always carries a
// human-readable reason; err is reserved for collaborator failures.
func (v *Verifier) Verify(ctx context.Context, live []byte, acct *account.Account, tier risk.Tier, now time.Time) (*Result, error) {
	if v.provider == nil {
		return nil, ErrNoProvider
	}
	if now.IsZero() {
		now = time.Now()
	}

	// Capture quality comes first: a blank frame fails regardless of what
	// the reference data would say.
	if DegenerateCapture(live) {
		return &Result{
			Match:  false,
			Reason: "capture quality check failed: frame is blank or obscured",
		}, nil
	}

	if len(acct.References) == 0 {
		return &Result{
			Match:  false,
			Reason: "no enrollment data: account has no reference samples",
		}, nil
	}

	// Hard attribute gate. A categorical mismatch overrides similarity
	// entirely; unknown/neutral attributes on either side never trigger it.
	liveAttr := v.provider.Classify(live)
	if acct.Attribute.Known() && liveAttr.Known() && liveAttr != acct.Attribute {
		return &Result{
			Match: false,
			Reason: fmt.Sprintf("attribute mismatch: capture classified as %s, account declared %s",
				liveAttr, acct.Attribute),
		}, nil
	}

	threshold, adjustments := v.threshold(acct, tier, now)

	liveVec, err := v.provider.Embed(live)
	if err != nil {
		return nil, fmt.Errorf("embed live capture: %w", err)
	}

	best := -1.0
	for _, ref := range acct.References {
		if sim := v.provider.Similarity(liveVec, ref); sim > best {
			best = sim
		}
	}

	res := &Result{
		Match:              best >= threshold,
		BestSimilarity:     best,
		Threshold:          threshold,
		ReferencesCompared: len(acct.References),
	}

	verdict := "below"
	if res.Match {
		verdict = "meets"
	}
	res.Reason = fmt.Sprintf("best similarity %.4f %s threshold %.4f across %d reference(s)%s",
		best, verdict, threshold, len(acct.References), adjustmentNote(adjustments))

	v.logger.Debug("biometric verification",
		"account", acct.ID, "match", res.Match,
		"similarity", best, "threshold", threshold)

	return res, nil
}

// threshold selects the required similarity for this attempt and reports
// which adjustments applied, for the audit reason string.
func (v *Verifier) threshold(acct *account.Account, tier risk.Tier, now time.Time) (float64, []string) {
	t := baseThreshold
	var adjustments []string

	switch tier {
	case risk.TierMedium:
		t = mediumThreshold
		adjustments = append(adjustments, "medium-risk transaction")
	case risk.TierHigh, risk.TierCritical:
		t = highThreshold
		adjustments = append(adjustments, "high-risk transaction")
	}

	if !acct.AgeAtLeast(youngAccountAge, now) {
		t += youngAccountBonus
		adjustments = append(adjustments, "account younger than 7 days")
	}

	if t > thresholdCap {
		t = thresholdCap
	}
	return t, adjustments
}

func adjustmentNote(adjustments []string) string {
	if len(adjustments) == 0 {
		return ""
	}
	return " (threshold raised: " + strings.Join(adjustments, ", ") + ")"
}

// DegenerateCapture reports whether the capture reads as a blank or
// obscured frame: the overwhelming majority of sampled bytes are
// near-black. Captures too small to sample are treated as degenerate.
func DegenerateCapture(sample []byte) bool {
	if len(sample) < minSampleSize {
		return true
	}

	sampled, dark := 0, 0
	for i := 0; i < len(sample); i += sampleStride {
		sampled++
		if sample[i] < darkByteMax {
			dark++
		}
	}
	return float64(dark) >= darkFraction*float64(sampled)
}
