// Package auth provides the credential primitives used by the account service:
// password policy, email validation, password hashing, reset tokens and
// session tokens.
package auth

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// MinPasswordLength is the minimum number of characters in a password.
	MinPasswordLength = 6

	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

// Password policy violations, in the order they are checked.
var (
	ErrPasswordEmpty    = errors.New("password is empty")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordNoDigit  = errors.New("password has no digit")
	ErrPasswordNoLetter = errors.New("password has no letter")
	ErrPasswordTooLong  = errors.New("password is too long")
)

// ValidatePassword checks password against the strength rules.
// The first failing rule is returned.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if !strings.ContainsAny(password, "0123456789") {
		return ErrPasswordNoDigit
	}
	if !strings.ContainsFunc(password, isASCIILetter) {
		return ErrPasswordNoLetter
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
