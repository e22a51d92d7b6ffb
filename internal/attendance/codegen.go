package attendance

import (
	"crypto/rand"
	"fmt"
)

// CodeLength is the number of characters in a generated attendance code.
const CodeLength = 8

// Upper-case alphanumerics match what students type on the check-in form,
// which upper-cases input.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode draws a random upper-case alphanumeric code. Pure generation,
// no persistence; callers re-draw on collision with an active code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
