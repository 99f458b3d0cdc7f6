package random

import (
	"crypto/rand"
	"math/big"
)

// ConnectionIDAlphabet is the alphabet used for connection identifiers
const ConnectionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// ConnectionIDLength is the length of generated connection identifiers
const ConnectionIDLength = 16

// Random provides random string generation that can be mocked for testing
type Random interface {
	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) string
}

// CryptoRandom implements Random using crypto/rand
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// String generates a random string of the given length from the given alphabet
func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	max := big.NewInt(int64(len(alphabet)))
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			n = big.NewInt(0)
		}
		result[i] = alphabet[n.Int64()]
	}
	return string(result)
}
