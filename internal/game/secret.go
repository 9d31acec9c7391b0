package game

import (
	"crypto/rand"
	"math/big"
)

// Random provides random numbers and can be replaced in tests.
type Random interface {
	// Intn returns a random int in [0, n).
	Intn(n int) int
}

// CryptoRandom implements Random using crypto/rand.
type CryptoRandom struct{}

// Intn returns a cryptographically random int in [0, n).
func (CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// GenerateSecret returns numDigits independent digits in 0-9. Digits may repeat.
func GenerateSecret(r Random, numDigits int) []int {
	secret := make([]int, numDigits)
	for i := range secret {
		secret[i] = r.Intn(10)
	}
	return secret
}

// ValidDigits reports whether guess has exactly n digits, each in 0-9.
func ValidDigits(guess []int, n int) bool {
	if len(guess) != n {
		return false
	}
	for _, d := range guess {
		if d < 0 || d > 9 {
			return false
		}
	}
	return true
}
