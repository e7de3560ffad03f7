package session

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// AccessCodeLength is the number of characters in an access code
	AccessCodeLength = 6

	// accessCodeAlphabet is base 36, upper-cased
	accessCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// maxCodeAttempts bounds the search for an unused code
	maxCodeAttempts = 32
)

// CodeGenerator produces candidate access codes.
type CodeGenerator func() (string, error)

// RandomCode draws AccessCodeLength characters uniformly from [0-9A-Z].
func RandomCode() (string, error) {
	alphabetSize := big.NewInt(int64(len(accessCodeAlphabet)))

	var b strings.Builder
	b.Grow(AccessCodeLength)
	for i := 0; i < AccessCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate access code: %w", err)
		}
		b.WriteByte(accessCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode canonicalizes user-entered codes for comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// uniqueCode draws codes until one is not in use.
func uniqueCode(gen CodeGenerator, inUse func(string) bool) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		code = NormalizeCode(code)
		if code != "" && !inUse(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unused access code after %d attempts", maxCodeAttempts)
}
