package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	activationTokenBytes = 20
	resetTokenBytes      = 10
	temporaryPasswordLen = 8
)

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// RandomHex returns n random bytes hex encoded
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ActivationToken returns a fresh account activation token
func ActivationToken() (string, error) {
	return RandomHex(activationTokenBytes)
}

// ResetToken returns a fresh password reset token
func ResetToken() (string, error) {
	return RandomHex(resetTokenBytes)
}

// TemporaryPassword returns a random alphanumeric password for admins who
// forgot theirs
func TemporaryPassword() (string, error) {
	out := make([]byte, temporaryPasswordLen)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
