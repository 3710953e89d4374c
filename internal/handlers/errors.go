package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/adfyer/apiserver/internal/auth"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/services"
)

const (
	msgInvalidBody  = "Invalid request body"
	msgUnauthorized = "unauthorized"
	msgServerError  = "Server error"
)

type errorEntry struct {
	err    error
	status int
	msg    string
}

// errorTable is the single source of client-facing error messages.
var errorTable = []errorEntry{
	{services.ErrEmailRequired, http.StatusBadRequest, "Please enter an email"},
	{services.ErrEmailInvalid, http.StatusBadRequest, "Please enter a valid email"},
	{auth.ErrPasswordEmpty, http.StatusBadRequest, "Please enter a password"},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, "Password must be at least 6 characters long"},
	{auth.ErrPasswordNoDigit, http.StatusBadRequest, "Password must contain at least one number"},
	{auth.ErrPasswordNoLetter, http.StatusBadRequest, "Password must contain at least one letter"},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, "Password must be at most 72 bytes long"},
	{services.ErrConfirmPasswordRequired, http.StatusBadRequest, "Please confirm your password"},
	{services.ErrPasswordMismatch, http.StatusBadRequest, "Passwords do not match"},
	{services.ErrCredentialsRequired, http.StatusBadRequest, "Please enter all fields"},
	{services.ErrResetTokenRequired, http.StatusBadRequest, "Please provide a reset token"},
	{services.ErrDuplicateAccount, http.StatusBadRequest, "Email already in use"},
	{services.ErrNoSuchAccount, http.StatusBadRequest, "User does not exist"},
	{services.ErrInvalidCredentials, http.StatusBadRequest, "Invalid credentials"},
	{services.ErrInvalidToken, http.StatusBadRequest, "Invalid reset token"},
	{services.ErrTokenExpired, http.StatusBadRequest, "Reset token has expired"},
}

// statusFor returns the status and message for err. Unknown errors are 500.
func statusFor(err error) (int, string) {
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.status, entry.msg
		}
	}
	return http.StatusInternalServerError, msgServerError
}

// writeServiceError writes the canonical response for err, logging the
// details of anything that is not a known outcome.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.LogError(logger, "request failed", err, "method", r.Method, "path", r.URL.Path)
	}
	writeError(w, status, msg)
}
