package store

import (
	"context"
	"sync"
	"time"

	"github.com/adfyer/apiserver/types"
	"github.com/google/uuid"
)

// MemoryAccountRepository keeps accounts in process memory. It enforces the
// same uniqueness rules as the database backends and is safe for concurrent use.
type MemoryAccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]types.Account
	byEmail map[string]string
	byToken map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]types.Account),
		byEmail: make(map[string]string),
		byToken: make(map[string]string),
	}
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *MemoryAccountRepository) GetByResetToken(_ context.Context, digest string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[digest]
	if !ok || digest == "" {
		return types.Account{}, ErrNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, account types.Account) (types.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[account.Email]; exists {
		return types.Account{}, ErrDuplicate
	}
	account.ID = uuid.NewString()
	account.CreatedAt = time.Now().UTC()
	account.ResetToken = ""
	account.ResetTokenExpiry = nil

	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	return cloneAccount(account), nil
}

func (r *MemoryAccountRepository) SetResetToken(_ context.Context, id, digest string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if owner, taken := r.byToken[digest]; taken && owner != id {
		return ErrDuplicate
	}
	if account.ResetToken != "" {
		delete(r.byToken, account.ResetToken)
	}
	expiry = expiry.UTC()
	account.ResetToken = digest
	account.ResetTokenExpiry = &expiry
	r.byID[id] = account
	r.byToken[digest] = id
	return nil
}

func (r *MemoryAccountRepository) ClearResetToken(_ context.Context, id, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok || digest == "" || account.ResetToken != digest {
		return ErrNotFound
	}
	r.consumeLocked(account, account.PasswordHash)
	return nil
}

func (r *MemoryAccountRepository) UpdatePassword(_ context.Context, id, passwordHash, digest string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok || digest == "" || account.ResetToken != digest {
		return ErrNotFound
	}
	r.consumeLocked(account, passwordHash)
	return nil
}

func (r *MemoryAccountRepository) consumeLocked(account types.Account, passwordHash string) {
	delete(r.byToken, account.ResetToken)
	account.PasswordHash = passwordHash
	account.ResetToken = ""
	account.ResetTokenExpiry = nil
	r.byID[account.ID] = account
}

func cloneAccount(account types.Account) types.Account {
	if account.ResetTokenExpiry != nil {
		expiry := *account.ResetTokenExpiry
		account.ResetTokenExpiry = &expiry
	}
	return account
}
