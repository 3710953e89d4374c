package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adfyer/apiserver/internal/auth"
	"github.com/adfyer/apiserver/internal/notify"
	"github.com/adfyer/apiserver/internal/store"
	"github.com/adfyer/apiserver/types"
	"github.com/samber/oops"
)

const (
	resetEmailSubject = "Password Reset"
	resetEmailBody    = "To reset your Adfyer account password, please use the following reset token: %s. " +
		"If you did not take this action you can safely disregard this email."

	dummyPassword = "not-a-real-password-0"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	GetByResetToken(ctx context.Context, digest string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error
	ClearResetToken(ctx context.Context, id, digest string) error
	UpdatePassword(ctx context.Context, id, passwordHash, digest string) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	Issue(accountID, email string) (string, error)
}

// Notifier sends out-of-band messages without blocking the caller.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

// Session is an authenticated account together with its bearer token.
type Session struct {
	Account types.Account
	Token   string
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

type ResetPasswordInput struct {
	ResetToken         string
	NewPassword        string
	ConfirmNewPassword string
}

// AccountService encapsulates the credential lifecycle: registration,
// sign-in and password reset.
type AccountService struct {
	repo      AccountRepository
	hasher    PasswordHasher
	tokens    SessionIssuer
	notifier  Notifier
	logger    *slog.Logger
	dummyHash string
	now       func() time.Time
}

func NewAccountService(
	repo AccountRepository,
	hasher PasswordHasher,
	tokens SessionIssuer,
	notifier Notifier,
	logger *slog.Logger,
) (*AccountService, error) {
	switch {
	case repo == nil:
		return nil, errors.New("account repository is required")
	case hasher == nil:
		return nil, errors.New("password hasher is required")
	case tokens == nil:
		return nil, errors.New("session issuer is required")
	case notifier == nil:
		return nil, errors.New("notifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, oops.Code("ACCOUNT_SERVICE_INIT").Wrap(err)
	}

	return &AccountService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		notifier:  notifier,
		logger:    logger,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

// Register creates an account and signs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := in.Email
	if err := checkEmail(email); err != nil {
		return Session{}, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return Session{}, err
	}
	if in.ConfirmPassword == "" {
		return Session{}, ErrConfirmPasswordRequired
	}
	if in.Password != in.ConfirmPassword {
		return Session{}, ErrPasswordMismatch
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, oops.Code("REGISTER_FAILED").With("operation", "hash").Wrap(err)
	}

	account, err := s.repo.Create(ctx, types.Account{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Session{}, ErrDuplicateAccount
		}
		return Session{}, oops.Code("REGISTER_FAILED").With("operation", "create").Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	return s.session(account)
}

// SignIn verifies credentials and issues a session token.
func (s *AccountService) SignIn(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, ErrCredentialsRequired
	}
	if !auth.ValidEmail(email) {
		return Session{}, ErrEmailInvalid
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Keeps unknown-account responses as slow as a wrong password.
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return Session{}, ErrNoSuchAccount
		}
		return Session{}, oops.Code("SIGNIN_FAILED").With("operation", "lookup").Wrap(err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return Session{}, oops.Code("SIGNIN_FAILED").With("operation", "verify").With("account_id", account.ID).Wrap(err)
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}

	return s.session(account)
}

// ForgotPassword stores a fresh reset token for the account and sends it to
// the account email. Delivery failures are not reported to the caller.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	if err := checkEmail(email); err != nil {
		return err
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoSuchAccount
		}
		return oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "lookup").Wrap(err)
	}

	token, digest, err := auth.GenerateResetToken()
	if err != nil {
		return oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "generate").Wrap(err)
	}
	expiry := s.now().Add(auth.ResetTokenTTL).UTC()
	if err := s.repo.SetResetToken(ctx, account.ID, digest, expiry); err != nil {
		return oops.Code("FORGOT_PASSWORD_FAILED").With("operation", "store").With("account_id", account.ID).Wrap(err)
	}

	s.notifier.Dispatch(ctx, notify.Message{
		To:      account.Email,
		Subject: resetEmailSubject,
		Body:    fmt.Sprintf(resetEmailBody, token),
	})
	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID, "expires_at", expiry)
	return nil
}

// ResetPassword consumes a reset token and replaces the account password.
// A token is accepted at most once.
func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) (Session, error) {
	token := in.ResetToken
	if token == "" {
		return Session{}, ErrResetTokenRequired
	}
	if in.NewPassword == "" {
		return Session{}, auth.ErrPasswordEmpty
	}
	if in.ConfirmNewPassword == "" {
		return Session{}, ErrConfirmPasswordRequired
	}
	if in.NewPassword != in.ConfirmNewPassword {
		return Session{}, ErrPasswordMismatch
	}
	if err := auth.ValidatePassword(in.NewPassword); err != nil {
		return Session{}, err
	}

	digest := auth.DigestResetToken(token)
	account, err := s.repo.GetByResetToken(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, oops.Code("RESET_PASSWORD_FAILED").With("operation", "lookup").Wrap(err)
	}

	if account.ResetExpired(s.now()) {
		if err := s.repo.ClearResetToken(ctx, account.ID, digest); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to clear expired reset token", "account_id", account.ID, "error", err)
		}
		return Session{}, ErrTokenExpired
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return Session{}, oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash").Wrap(err)
	}

	if err := s.repo.UpdatePassword(ctx, account.ID, hash, digest); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidToken
		}
		return Session{}, oops.Code("RESET_PASSWORD_FAILED").With("operation", "update").With("account_id", account.ID).Wrap(err)
	}

	account.PasswordHash = hash
	account.ResetToken = ""
	account.ResetTokenExpiry = nil
	s.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID)
	return s.session(account)
}

// Account loads an account by ID.
func (s *AccountService) Account(ctx context.Context, id string) (types.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrNoSuchAccount
		}
		return types.Account{}, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id).Wrap(err)
	}
	return account, nil
}

func (s *AccountService) session(account types.Account) (Session, error) {
	token, err := s.tokens.Issue(account.ID, account.Email)
	if err != nil {
		return Session{}, oops.Code("SESSION_ISSUE_FAILED").With("account_id", account.ID).Wrap(err)
	}
	return Session{Account: account, Token: token}, nil
}

func checkEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if !auth.ValidEmail(email) {
		return ErrEmailInvalid
	}
	return nil
}
