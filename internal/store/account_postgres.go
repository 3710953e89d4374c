package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/adfyer/apiserver/types"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/samber/oops"
)

// PostgresAccountRepository handles persistence for accounts in postgres.
type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var (
		account     types.Account
		resetToken  sql.NullString
		resetExpiry sql.NullTime
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&resetToken,
		&resetExpiry,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, oops.Code("STORE_SCAN_FAILED").Wrap(err)
	}
	if resetToken.Valid && resetExpiry.Valid {
		expiry := resetExpiry.Time
		account.ResetToken = resetToken.String
		account.ResetTokenExpiry = &expiry
	}
	return account, nil
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Account{}, ErrNotFound
	}
	const query = `
		SELECT id, email, password_hash, reset_token, reset_token_expiry, created_at
		FROM accounts
		WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	const query = `
		SELECT id, email, password_hash, reset_token, reset_token_expiry, created_at
		FROM accounts
		WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresAccountRepository) GetByResetToken(ctx context.Context, digest string) (types.Account, error) {
	if digest == "" {
		return types.Account{}, ErrNotFound
	}
	const query = `
		SELECT id, email, password_hash, reset_token, reset_token_expiry, created_at
		FROM accounts
		WHERE reset_token = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, digest))
}

// Create inserts a new account. The unique index on email decides races
// between concurrent registrations.
func (r *PostgresAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	account.ID = uuid.NewString()
	account.CreatedAt = time.Now().UTC()
	account.ResetToken = ""
	account.ResetTokenExpiry = nil

	const query = `
		INSERT INTO accounts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
	)
	if err != nil {
		return types.Account{}, translateWriteError(err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error {
	const query = `
		UPDATE accounts
		SET reset_token = $1,
			reset_token_expiry = $2
		WHERE id = $3`
	return r.execOne(ctx, query, digest, expiry.UTC(), id)
}

func (r *PostgresAccountRepository) ClearResetToken(ctx context.Context, id, digest string) error {
	const query = `
		UPDATE accounts
		SET reset_token = NULL,
			reset_token_expiry = NULL
		WHERE id = $1 AND reset_token = $2`
	return r.execOne(ctx, query, id, digest)
}

// UpdatePassword replaces the password hash and consumes the reset token in
// one statement. It returns ErrNotFound if the token was already consumed.
func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash, digest string) error {
	const query = `
		UPDATE accounts
		SET password_hash = $1,
			reset_token = NULL,
			reset_token_expiry = NULL
		WHERE id = $2 AND reset_token = $3`
	return r.execOne(ctx, query, passwordHash, id, digest)
}

func (r *PostgresAccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").Wrap(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func translateWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		return oops.Code("STORE_DUPLICATE").
			With("constraint", pqErr.Constraint).
			Wrap(errors.Join(ErrDuplicate, err))
	}
	return oops.Code("STORE_WRITE_FAILED").Wrap(err)
}
