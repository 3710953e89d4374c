package types

import "time"

// Account represents a registered user and its credentials.
type Account struct {
	// ID is the opaque identifier assigned by the store at creation.
	ID string `json:"id" db:"id"`

	// Email is the unique login address. It is compared case-sensitively.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt output for the account password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetToken is the digest of a pending password reset token.
	// Empty when no reset is pending.
	ResetToken string `json:"-" db:"reset_token"`

	// ResetTokenExpiry is set whenever ResetToken is set.
	ResetTokenExpiry *time.Time `json:"-" db:"reset_token_expiry"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HasPendingReset reports whether a reset token is outstanding.
func (a Account) HasPendingReset() bool {
	return a.ResetToken != "" && a.ResetTokenExpiry != nil
}

// ResetExpired reports whether the pending reset token is past its expiry at now.
// An account without a pending reset is treated as expired.
func (a Account) ResetExpired(now time.Time) bool {
	if !a.HasPendingReset() {
		return true
	}
	return now.After(*a.ResetTokenExpiry)
}

// AccountIdentity is the public view of an account returned by the API.
type AccountIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity returns the public view of the account.
func (a Account) Identity() AccountIdentity {
	return AccountIdentity{ID: a.ID, Email: a.Email}
}
