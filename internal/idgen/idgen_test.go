package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("txn_")
	if !strings.HasPrefix(id, "txn_") {
		t.Errorf("missing prefix: %s", id)
	}
	if len(id) != len("txn_")+24 {
		t.Errorf("len = %d, want %d", len(id), len("txn_")+24)
	}
	if id == WithPrefix("txn_") {
		t.Error("two ids should not collide")
	}
}

func TestOTP(t *testing.T) {
	code := OTP(6)
	if len(code) != 6 {
		t.Fatalf("len = %d, want 6", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("non-digit in code: %q", code)
		}
	}
}

func TestOTPDigitsAreUniform(t *testing.T) {
	// Walk the whole byte range: every digit must be reachable from
	// exactly 25 bytes, with the 6 bytes that would fold onto 0-5
	// rejected. Without rejection those digits are ~2% likelier.
	counts := make(map[byte]int)
	rejected := 0
	for b := 0; b < 256; b++ {
		d, ok := otpDigit(byte(b))
		if !ok {
			rejected++
			continue
		}
		counts[d]++
	}
	if rejected != 6 {
		t.Errorf("rejected %d bytes, want 6", rejected)
	}
	if len(counts) != 10 {
		t.Fatalf("saw %d distinct digits, want 10", len(counts))
	}
	for d, n := range counts {
		if n != 25 {
			t.Errorf("digit %q reachable from %d bytes, want 25", d, n)
		}
	}
}

func TestNew(t *testing.T) {
	if New() == New() {
		t.Error("two uuids should not collide")
	}
}
