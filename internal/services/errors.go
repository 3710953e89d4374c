package services

import "errors"

// Validation and credential outcomes returned by AccountService. Each maps to
// one client-facing message at the HTTP layer.
var (
	ErrEmailRequired           = errors.New("email is required")
	ErrEmailInvalid            = errors.New("email is invalid")
	ErrConfirmPasswordRequired = errors.New("password confirmation is required")
	ErrPasswordMismatch        = errors.New("passwords do not match")
	ErrCredentialsRequired     = errors.New("email and password are required")
	ErrResetTokenRequired      = errors.New("reset token is required")
	ErrDuplicateAccount        = errors.New("account already exists")
	ErrNoSuchAccount           = errors.New("account does not exist")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidToken            = errors.New("invalid reset token")
	ErrTokenExpired            = errors.New("reset token has expired")
)
