package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/risk"
)

var verifyNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// capture builds a simulated capture payload, padded past the degenerate
// size floor.
func capture(t *testing.T, subject, attribute string, noise float64) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"subject":   subject,
		"attribute": attribute,
		"noise":     noise,
		"padding":   strings.Repeat("x", 80),
	})
	if err != nil {
		t.Fatalf("marshal capture: %v", err)
	}
	return b
}

// enrolled returns an account with one reference embedded from the subject.
func enrolled(t *testing.T, subject string, attr account.Attribute, age time.Duration) *account.Account {
	t.Helper()
	ref, err := NewSimProvider().Embed(capture(t, subject, string(attr), 0))
	if err != nil {
		t.Fatalf("embed reference: %v", err)
	}
	return &account.Account{
		ID:         "acct_bio00001",
		Name:       "Enrolled Holder",
		Status:     account.StatusActive,
		Attribute:  attr,
		References: [][]float64{ref},
		CreatedAt:  verifyNow.Add(-age),
	}
}

func TestDegenerateCapture(t *testing.T) {
	if !DegenerateCapture(nil) {
		t.Error("nil capture should be degenerate")
	}
	if !DegenerateCapture(make([]byte, 63)) {
		t.Error("undersized capture should be degenerate")
	}
	if !DegenerateCapture(make([]byte, 4096)) {
		t.Error("all-zero frame should be degenerate")
	}
	if DegenerateCapture(bytes.Repeat([]byte{0x80}, 4096)) {
		t.Error("bright frame should not be degenerate")
	}
}

func TestVerifyDegenerateCaptureFailsFirst(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)

	res, err := v.Verify(context.Background(), make([]byte, 4096), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Match {
		t.Error("blank frame must never match")
	}
	if !strings.Contains(res.Reason, "capture quality") {
		t.Errorf("reason should cite capture quality: %q", res.Reason)
	}
}

func TestVerifyNoEnrollmentFails(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)
	acct.References = nil

	res, err := v.Verify(context.Background(), capture(t, "alice", "female", 0), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Match {
		t.Error("no references must never match")
	}
	if !strings.Contains(res.Reason, "no enrollment data") {
		t.Errorf("reason should cite missing enrollment: %q", res.Reason)
	}
}

func TestVerifyAttributeGateOverridesSimilarity(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)

	// Same subject (perfect similarity) but a mismatched declared attribute.
	res, err := v.Verify(context.Background(), capture(t, "alice", "male", 0), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Match {
		t.Error("attribute mismatch must fail regardless of similarity")
	}
	if !strings.Contains(res.Reason, "attribute mismatch") {
		t.Errorf("reason should cite the attribute gate: %q", res.Reason)
	}
}

func TestVerifyUnknownAttributeSkipsGate(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeUnknown, 30*24*time.Hour)

	res, err := v.Verify(context.Background(), capture(t, "alice", "male", 0), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Match {
		t.Errorf("undeclared account attribute must not trigger the gate: %q", res.Reason)
	}
}

func TestVerifySameSubjectMatches(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)

	res, err := v.Verify(context.Background(), capture(t, "alice", "female", 0.01), acct, risk.TierHigh, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Match {
		t.Errorf("same subject with slight noise should match: similarity %.4f vs threshold %.4f",
			res.BestSimilarity, res.Threshold)
	}
	if res.ReferencesCompared != 1 {
		t.Errorf("compared %d references, want 1", res.ReferencesCompared)
	}
}

func TestVerifyDifferentSubjectFails(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)

	res, err := v.Verify(context.Background(), capture(t, "mallory", "female", 0), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Match {
		t.Errorf("different subject should not match: similarity %.4f", res.BestSimilarity)
	}
}

func TestVerifyMaxSimilarityAcrossReferences(t *testing.T) {
	p := NewSimProvider()
	v := NewVerifier(p)
	acct := enrolled(t, "bob", account.AttributeMale, 30*24*time.Hour)

	// Add an unrelated reference; the matching one must still win.
	stray, err := p.Embed(capture(t, "someone-else", "male", 0))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	acct.References = append([][]float64{stray}, acct.References...)

	res, err := v.Verify(context.Background(), capture(t, "bob", "male", 0), acct, risk.TierLow, verifyNow)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Match {
		t.Errorf("best-of-references should match: %q", res.Reason)
	}
	if res.ReferencesCompared != 2 {
		t.Errorf("compared %d references, want 2", res.ReferencesCompared)
	}
}

func TestThresholdOrdering(t *testing.T) {
	v := NewVerifier(NewSimProvider())
	mature := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)
	young := enrolled(t, "alice", account.AttributeFemale, 24*time.Hour)

	low, _ := v.threshold(mature, risk.TierLow, verifyNow)
	medium, _ := v.threshold(mature, risk.TierMedium, verifyNow)
	high, _ := v.threshold(mature, risk.TierHigh, verifyNow)
	critical, _ := v.threshold(mature, risk.TierCritical, verifyNow)

	if !(low < medium && medium < high) {
		t.Errorf("thresholds must increase with tier: %f %f %f", low, medium, high)
	}
	if high != critical {
		t.Errorf("HIGH and CRITICAL share a threshold: %f vs %f", high, critical)
	}

	youngHigh, adjustments := v.threshold(young, risk.TierHigh, verifyNow)
	if youngHigh <= high {
		t.Error("young accounts must face a stricter threshold")
	}
	if youngHigh > thresholdCap {
		t.Errorf("threshold %f exceeds cap %f", youngHigh, thresholdCap)
	}
	if len(adjustments) != 2 {
		t.Errorf("expected tier and age adjustments, got %v", adjustments)
	}
}

func TestVerifyNoProvider(t *testing.T) {
	v := NewVerifier(nil)
	acct := enrolled(t, "alice", account.AttributeFemale, 30*24*time.Hour)

	if _, err := v.Verify(context.Background(), capture(t, "alice", "female", 0), acct, risk.TierLow, verifyNow); err != ErrNoProvider {
		t.Errorf("got %v, want ErrNoProvider", err)
	}
}

func TestCosine(t *testing.T) {
	a := []float64{1, 0, 0}
	if got := Cosine(a, a); got < 0.9999 {
		t.Errorf("self-similarity = %f, want 1", got)
	}
	if got := Cosine(a, []float64{0, 1, 0}); got != 0 {
		t.Errorf("orthogonal similarity = %f, want 0", got)
	}
	if got := Cosine(a, []float64{1, 0}); got != 0 {
		t.Errorf("mismatched lengths = %f, want 0", got)
	}
	if got := Cosine(a, []float64{0, 0, 0}); got != 0 {
		t.Errorf("zero vector = %f, want 0", got)
	}
}
