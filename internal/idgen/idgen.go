// Package idgen provides random identifier generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New generates a random UUID string for transaction identifiers.
func New() string {
	return uuid.NewString()
}

// WithPrefix generates a random ID with a prefix (e.g. "risk_", "inc_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// OTP generates an n-digit numeric one-time code.
func OTP(n int) string {
	code := make([]byte, n)
	buf := make([]byte, 1)
	for i := 0; i < n; {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		d, ok := otpDigit(buf[0])
		if !ok {
			continue
		}
		code[i] = d
		i++
	}
	return string(code)
}

// otpDigit maps one random byte to an ASCII digit. Bytes of 250 and above
// are rejected: a plain modulo over the full byte range folds 250-255 onto
// digits 0-5 and skews the code toward them.
func otpDigit(b byte) (byte, bool) {
	if b >= 250 {
		return 0, false
	}
	return '0' + b%10, true
}
