package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"txn_1a2b3c4d", true},
		{"acct_httptest01", true},
		{"0123456789abcdef-ABCDEF_0123456789abcdef", true},

		// Invalid cases
		{"short", false},             // under 8 chars
		{"", false},                  //
		{"has space 123", false},     // whitespace
		{"txn/1a2b3c4d", false},      // slash
		{string(make([]byte, 65)), false}, // over 64 chars
	}

	for _, tc := range tests {
		if got := IsValidID(tc.id); got != tc.valid {
			t.Errorf("IsValidID(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestIsValidRecipient(t *testing.T) {
	tests := []struct {
		recipient string
		valid     bool
	}{
		{"merchant@upi", true},
		{"some.person_1@bank", true},
		{"plainhandle", true},

		// Invalid cases
		{"a", false},              // too short
		{"@bank", false},          // empty local part
		{"name@", false},          // empty bank part
		{"name@bank@extra", false},
		{"has space@bank", false},
	}

	for _, tc := range tests {
		if got := IsValidRecipient(tc.recipient); got != tc.valid {
			t.Errorf("IsValidRecipient(%q) = %v, want %v", tc.recipient, got, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		if got := SanitizeString(tc.input, tc.maxLen); got != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errors := Validate(
		Required("accountId", "acct_httptest01"),
		ValidRecipient("recipient", "merchant@upi"),
		ValidAmount("amount", "100.50"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	errors = Validate(
		Required("accountId", ""),
		ValidRecipient("recipient", "@bank"),
		ValidAmount("amount", "-5"),
	)
	if len(errors) != 3 {
		t.Errorf("Expected 3 errors, got %d: %v", len(errors), errors)
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1.00", true},
		{"0.50", true},
		{"100", true},
		{"0.0001", true},

		// Invalid
		{".50", false},
		{"1.", false},
		{"abc", false},
		{"-1.00", false},
		{"1.2.3", false},
		{"0", false}, // zero is not a payable amount
		{"0.00", false},
	}

	for _, tc := range tests {
		err := ValidAmount("amount", tc.value)()
		if valid := err == nil; valid != tc.valid {
			t.Errorf("ValidAmount(%q) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "hello", 10)(); err != nil {
		t.Error("Expected no error for string under limit")
	}
	if err := MaxLength("field", "hello", 5)(); err != nil {
		t.Error("Expected no error for string at limit")
	}
	if err := MaxLength("field", "hello world", 5)(); err == nil {
		t.Error("Expected error for string over limit")
	}
}

func TestIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IDParamMiddleware("id"))
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/things/txn_1a2b3c4d", nil))
	if w.Code != http.StatusOK {
		t.Errorf("valid id: status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/things/bad", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", w.Code)
	}
}
