// Package ids generates run identifiers and random names.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// DefaultAlphabet is a-z, A-Z, 0-9. Twelve characters carry about 71 bits.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns n characters drawn uniformly from alphabet using the
// operating system CSPRNG. An empty alphabet means DefaultAlphabet.
func RandomString(n int, alphabet string) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	runes := []rune(alphabet)
	limit := big.NewInt(int64(len(runes)))

	out := make([]rune, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random string: %w", err)
		}
		out[i] = runes[idx.Int64()]
	}
	return string(out), nil
}

// MustRandomString is RandomString for the default alphabet that panics when the
// system random source fails.
func MustRandomString(n int) string {
	s, err := RandomString(n, "")
	if err != nil {
		panic(err)
	}
	return s
}

// NewRunID returns a sortable, unique identifier such as
// "20260114T093000Z-1f0c2a9e".
func NewRunID() string {
	return NewRunIDAt(time.Now())
}

// NewRunIDAt is NewRunID with an explicit clock reading.
func NewRunIDAt(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}
