package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// alphanumeric is the 62-character alphabet codes and tokens are drawn from.
const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	// DefaultCodeLength is the length of generated authorization codes.
	// 16 characters over a 62-character alphabet is roughly 95 bits of
	// entropy, which makes guessing infeasible within the code's TTL.
	DefaultCodeLength = 16

	// DefaultTokenLength is the length of generated access tokens,
	// roughly 190 bits of entropy.
	DefaultTokenLength = 32
)

// RandomString returns a string of n characters drawn independently and
// uniformly from the alphanumeric alphabet using crypto/rand.
//
// The function panics if the system's random number generator fails, which
// indicates a critical system-level security failure: minting a guessable
// credential is strictly worse than crashing.
func RandomString(n int) string {
	max := big.NewInt(int64(len(alphanumeric)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}

// GenerateAuthorizationCode returns a fresh authorization code.
func GenerateAuthorizationCode() string {
	return RandomString(DefaultCodeLength)
}

// GenerateAccessToken returns a fresh access token.
func GenerateAccessToken() string {
	return RandomString(DefaultTokenLength)
}
