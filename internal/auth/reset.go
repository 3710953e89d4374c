package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

const (
	// ResetTokenBytes is the amount of randomness in a reset token (64 hex chars).
	ResetTokenBytes = 32

	// ResetTokenTTL is how long a reset token stays valid after issuance.
	ResetTokenTTL = time.Hour
)

// GenerateResetToken creates a random reset token and its digest.
// The token is sent to the user; only the digest is persisted.
func GenerateResetToken() (token, digest string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, DigestResetToken(token), nil
}

// DigestResetToken returns the hex SHA-256 of token, the form stored on the account.
func DigestResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
