package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const (
	Digits = 6

	minCode = 100000
	maxCode = 999999
)

var span = big.NewInt(maxCode - minCode + 1)

// Generate returns a 6-digit code drawn uniformly from 100000-999999.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+minCode), nil
}

// Equal compares codes in constant time.
func Equal(submitted, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}
