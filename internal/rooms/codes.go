package rooms

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet excludes ambiguous characters: 0, O, 1, I, L
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 4

var alphabetSize = big.NewInt(int64(len(alphabet)))

// GenerateCode returns a random room code. Uniqueness is checked by the Store.
func GenerateCode() (string, error) {
	var sb strings.Builder
	sb.Grow(codeLength)
	for range codeLength {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeCode maps user input such as " abcd" onto the stored form "ABCD".
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
