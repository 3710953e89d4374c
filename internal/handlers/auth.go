package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adfyer/apiserver/internal/auth"
	"github.com/adfyer/apiserver/internal/services"
	"github.com/adfyer/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// TokenVerifier validates bearer session tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AccountHandler provides the credential endpoints.
type AccountHandler struct {
	accounts *services.AccountService
	tokens   TokenVerifier
	logger   *slog.Logger
}

// NewAccountHandler constructs an AccountHandler with the provided dependencies.
func NewAccountHandler(accounts *services.AccountService, tokens TokenVerifier, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

// AccountRouter registers account routes on the given router.
func AccountRouter(r chi.Router, handler *AccountHandler) {
	r.Post("/register", handler.Register)
	r.Post("/signin", handler.SignIn)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/update-password", handler.UpdatePassword)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces bearer authentication and injects the session claims
// into the request context. Missing and invalid tokens are both 401.
func (h *AccountHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		claims, err := h.tokens.Verify(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// Register creates a new account and returns a session token.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	session, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse("User created", session))
}

// SignIn verifies credentials and returns a session token.
func (h *AccountHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	session, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		// Unknown accounts and wrong passwords share one message.
		if errors.Is(err, services.ErrNoSuchAccount) {
			err = services.ErrInvalidCredentials
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse("Signed in", session))
}

// ForgotPassword issues a reset token and sends it to the account email.
func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Reset token sent"})
}

// UpdatePassword consumes a reset token and sets a new password.
func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	session, err := h.accounts.ResetPassword(r.Context(), services.ResetPasswordInput{
		ResetToken:         req.ResetToken,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse("Password updated successfully", session))
}

// Me returns the current authenticated account.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := ClaimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	account, err := h.accounts.Account(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, services.ErrNoSuchAccount) {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, IdentityResponse{Msg: "Authenticated", Data: account.Identity()})
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type UpdatePasswordRequest struct {
	ResetToken         string `json:"resetToken"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

// MessageResponse is the body of every error and of message-only successes.
type MessageResponse struct {
	Msg string `json:"msg"`
}

type IdentityResponse struct {
	Msg  string                `json:"msg"`
	Data types.AccountIdentity `json:"data"`
}

type SessionResponse struct {
	Msg   string                `json:"msg"`
	Data  types.AccountIdentity `json:"data"`
	Token string                `json:"token"`
}

func newSessionResponse(msg string, session services.Session) SessionResponse {
	return SessionResponse{
		Msg:   msg,
		Data:  session.Account.Identity(),
		Token: session.Token,
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
