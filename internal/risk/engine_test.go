package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/profile"
	"github.com/dhruvm848/sentinel/internal/velocity"
)

func activeAccount() *account.Account {
	return &account.Account{
		ID:        "acct_test0001",
		Name:      "Test Holder",
		Status:    account.StatusActive,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func proposed(amount int64, recipient string, category ledger.Category) *ledger.Transaction {
	return &ledger.Transaction{
		ID:        "txn_test0001",
		AccountID: "acct_test0001",
		Recipient: recipient,
		Amount:    decimal.NewFromInt(amount),
		Category:  category,
	}
}

// seededHistory returns enough approved daytime UPI payments to recipient
// for the profile to be sufficient.
func seededHistory(recipient string, n int, amount int64, hour int) []*ledger.Transaction {
	var history []*ledger.Transaction
	for i := 0; i < n; i++ {
		history = append(history, &ledger.Transaction{
			Recipient: recipient,
			Amount:    decimal.NewFromInt(amount),
			Category:  ledger.CategoryUPI,
			Status:    ledger.StatusApproved,
			CreatedAt: time.Date(2026, 8, 10+i%5, hour, 0, 0, 0, time.UTC),
		})
	}
	return history
}

func score(t *testing.T, in *Input) *Assessment {
	t.Helper()
	a, err := NewEngine(nil).Score(context.Background(), in)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	return a
}

func TestScoreBoundsAndTierDeterminism(t *testing.T) {
	history := seededHistory("known@upi", 10, 500, 11)
	inputs := []*Input{
		{Transaction: proposed(500, "known@upi", ledger.CategoryUPI)},
		{Transaction: proposed(95_000, "stranger@upi", ledger.CategoryIMPS), Location: LocationDenied},
		{Transaction: proposed(5_000, "new@upi", ledger.CategoryUPI)},
	}
	for _, in := range inputs {
		in.Account = activeAccount()
		in.Profile = profile.Build(history)
		in.History = history
		in.Now = time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)

		a := score(t, in)
		if a.Score < 0 || a.Score > 100 {
			t.Errorf("score out of bounds: %d", a.Score)
		}
		if a.Tier != TierForScore(a.Score) {
			t.Errorf("tier %s inconsistent with score %d", a.Tier, a.Score)
		}
		if len(a.Rationale) == 0 {
			t.Error("rationale must never be empty")
		}
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score int
		want  Tier
	}{
		{0, TierLow}, {40, TierLow},
		{41, TierMedium}, {70, TierMedium},
		{71, TierHigh}, {90, TierHigh},
		{91, TierCritical}, {100, TierCritical},
	}
	for _, c := range cases {
		if got := TierForScore(c.score); got != c.want {
			t.Errorf("TierForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestRejectsMalformedInput(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Score(context.Background(), &Input{
		Transaction: proposed(0, "someone@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
	})
	if err != ErrNonPositiveAmount {
		t.Errorf("zero amount: got %v, want ErrNonPositiveAmount", err)
	}

	_, err = engine.Score(context.Background(), &Input{
		Transaction: proposed(100, "", ledger.CategoryUPI),
		Account:     activeAccount(),
	})
	if err != ErrEmptyRecipient {
		t.Errorf("empty recipient: got %v, want ErrEmptyRecipient", err)
	}
}

func TestLateNightNewAccountScenario(t *testing.T) {
	// 5,000 UPI at 3am with no history: middle band + late night = 80.
	a := score(t, &Input{
		Transaction: proposed(5_000, "stranger@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(nil),
		Location:    LocationPending,
		Now:         time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC),
	})

	if a.Score != 80 || a.Tier != TierHigh {
		t.Errorf("expected HIGH/80, got %s/%d: %v", a.Tier, a.Score, a.Rationale)
	}
	joined := strings.Join(a.Rationale, "\n")
	if !strings.Contains(joined, "late-night") {
		t.Errorf("rationale should mention late-night: %v", a.Rationale)
	}
	if !strings.Contains(joined, "first payment") {
		t.Errorf("rationale should mention the unseen recipient: %v", a.Rationale)
	}
}

func TestRoutineTransactionIsLow(t *testing.T) {
	// 500 UPI to a frequent recipient, typical hours, consistent location.
	history := seededHistory("known@upi", 10, 500, 11)
	for _, tx := range history {
		tx.Location = &ledger.Geo{City: "Mumbai"}
	}

	a := score(t, &Input{
		Transaction:   proposed(500, "known@upi", ledger.CategoryUPI),
		Account:       activeAccount(),
		Profile:       profile.Build(history),
		Location:      LocationSuccess,
		City:          "Mumbai",
		TypicalCities: profile.TypicalCities(history, 3),
		History:       history,
		Now:           time.Date(2026, 8, 20, 11, 30, 0, 0, time.UTC),
	})

	if a.Score > 40 || a.Tier != TierLow {
		t.Errorf("routine transaction should be LOW (<=40), got %s/%d: %v", a.Tier, a.Score, a.Rationale)
	}
	if len(a.Rationale) == 0 {
		t.Error("rationale must not be empty even for LOW")
	}
}

func TestStackedSignalsClampAtHundred(t *testing.T) {
	// 95,000 IMPS to a brand-new recipient with location denied.
	history := seededHistory("known@upi", 10, 500, 11)

	a := score(t, &Input{
		Transaction: proposed(95_000, "stranger@upi", ledger.CategoryIMPS),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		Location:    LocationDenied,
		History:     history,
		Now:         time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC),
	})

	if a.Score != 100 {
		t.Errorf("stacked signals should clamp at 100, got %d", a.Score)
	}
	if a.Tier != TierCritical {
		t.Errorf("expected CRITICAL, got %s", a.Tier)
	}
	joined := strings.Join(a.Rationale, "\n")
	if !strings.Contains(joined, "location access denied") {
		t.Errorf("rationale should include the location denial: %v", a.Rationale)
	}
	if !strings.Contains(joined, "not among frequent recipients") {
		t.Errorf("rationale should include the new-recipient line: %v", a.Rationale)
	}
}

func TestAmountOutlier(t *testing.T) {
	// History of uniform 200s, then a 5,000 payment: way past mean+2.5σ.
	history := seededHistory("known@upi", 8, 200, 11)
	history = append(history, seededHistory("other@upi", 2, 210, 11)...)

	a := score(t, &Input{
		Transaction: proposed(5_000, "known@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		History:     history,
		Now:         time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(strings.Join(a.Rationale, "\n"), "far exceeds typical spend") {
		t.Errorf("rationale should flag the spend outlier: %v", a.Rationale)
	}
}

func TestZeroStddevNeverFlagsOutlier(t *testing.T) {
	// Identical amounts: stddev is zero; outlier check must not divide by it
	// or flag the same amount.
	history := seededHistory("known@upi", 10, 300, 11)

	a := score(t, &Input{
		Transaction: proposed(300, "known@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		History:     history,
		Now:         time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})

	if strings.Contains(strings.Join(a.Rationale, "\n"), "far exceeds") {
		t.Errorf("zero stddev must not produce an outlier flag: %v", a.Rationale)
	}
}

func TestSameDayRepeatRecipient(t *testing.T) {
	now := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	var history []*ledger.Transaction
	for i := 0; i < 3; i++ {
		history = append(history, &ledger.Transaction{
			Recipient: "pattern@upi",
			Amount:    decimal.NewFromInt(900),
			Category:  ledger.CategoryUPI,
			Status:    ledger.StatusApproved,
			CreatedAt: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	a := score(t, &Input{
		Transaction: proposed(900, "pattern@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		History:     history,
		Now:         now,
	})

	if !strings.Contains(strings.Join(a.Rationale, "\n"), "already made today") {
		t.Errorf("rationale should flag same-day repeats: %v", a.Rationale)
	}
}

func TestLocationMismatch(t *testing.T) {
	history := seededHistory("known@upi", 10, 500, 11)

	a := score(t, &Input{
		Transaction:   proposed(500, "known@upi", ledger.CategoryUPI),
		Account:       activeAccount(),
		Profile:       profile.Build(history),
		Location:      LocationSuccess,
		City:          "Moscow",
		TypicalCities: []string{"Mumbai", "Pune", "Delhi"},
		History:       history,
		Now:           time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(strings.Join(a.Rationale, "\n"), "does not match usual cities") {
		t.Errorf("rationale should flag the city mismatch: %v", a.Rationale)
	}
}

func TestUnderReviewPenalty(t *testing.T) {
	history := seededHistory("known@upi", 10, 500, 11)
	acct := activeAccount()
	acct.Status = account.StatusUnderReview

	a := score(t, &Input{
		Transaction: proposed(500, "known@upi", ledger.CategoryUPI),
		Account:     acct,
		Profile:     profile.Build(history),
		History:     history,
		Now:         time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(strings.Join(a.Rationale, "\n"), "under review") {
		t.Errorf("rationale should flag the account standing: %v", a.Rationale)
	}
}

func TestVelocityNearCapSignal(t *testing.T) {
	history := seededHistory("known@upi", 10, 500, 11)

	a := score(t, &Input{
		Transaction: proposed(2_000, "known@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		Velocity:    velocity.Totals{Daily: decimal.NewFromInt(85_000), Weekly: decimal.NewFromInt(85_000)},
		History:     history,
		Now:         time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(strings.Join(a.Rationale, "\n"), "approaches") {
		t.Errorf("rationale should flag velocity pressure: %v", a.Rationale)
	}
}

func TestAuditRecordPersisted(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store)
	history := seededHistory("known@upi", 10, 500, 11)

	a, err := engine.Score(context.Background(), &Input{
		Transaction: proposed(500, "known@upi", ledger.CategoryUPI),
		Account:     activeAccount(),
		Profile:     profile.Build(history),
		History:     history,
		Now:         time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	// The record is written asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		records, err := store.ListByAccount(context.Background(), "acct_test0001", 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(records) == 1 {
			if records[0].ID != a.ID {
				t.Errorf("recorded id %s, want %s", records[0].ID, a.ID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("assessment never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
