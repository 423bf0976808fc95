// Package otp generates the one-time numeric codes used for email
// verification and two-factor login.
package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// Digits is the code length the product uses everywhere.
const Digits = 6

// New returns a uniformly random numeric code of the given length. Each
// digit is drawn independently from crypto/rand, so codes are not derivable
// from earlier ones.
func New(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp length")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
