package util

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomBase36 returns n characters drawn uniformly from [0-9a-z].
func RandomBase36(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36Alphabet[idx.Int64()])
	}
	return sb.String(), nil
}
