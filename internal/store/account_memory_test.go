package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adfyer/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreate_DuplicateEmail(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, types.Account{Email: "a@b.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = repo.Create(ctx, types.Account{Email: "a@b.com", PasswordHash: "h2"})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.Create(ctx, types.Account{Email: "A@b.com", PasswordHash: "h3"})
	assert.NoError(t, err, "emails are case-sensitive")
}

func TestMemoryCreate_ConcurrentSameEmail(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, types.Account{Email: "race@b.com", PasswordHash: "h"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, ErrDuplicate) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, dupes)
}

func TestMemoryResetTokenLifecycle(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account, err := repo.Create(ctx, types.Account{Email: "a@b.com", PasswordHash: "old"})
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "digest-1", expiry))

	found, err := repo.GetByResetToken(ctx, "digest-1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
	assert.True(t, found.HasPendingReset())

	// A second request replaces the first token.
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "digest-2", expiry))
	_, err = repo.GetByResetToken(ctx, "digest-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.UpdatePassword(ctx, account.ID, "new", "digest-2"))
	assert.ErrorIs(t, repo.UpdatePassword(ctx, account.ID, "newer", "digest-2"), ErrNotFound)

	updated, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.PasswordHash)
	assert.False(t, updated.HasPendingReset())
	assert.Nil(t, updated.ResetTokenExpiry)

	_, err = repo.GetByResetToken(ctx, "digest-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryClearResetToken(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account, err := repo.Create(ctx, types.Account{Email: "a@b.com", PasswordHash: "old"})
	require.NoError(t, err)
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "digest", time.Now()))

	assert.ErrorIs(t, repo.ClearResetToken(ctx, account.ID, "other"), ErrNotFound)
	require.NoError(t, repo.ClearResetToken(ctx, account.ID, "digest"))

	got, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", got.PasswordHash)
	assert.False(t, got.HasPendingReset())
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	account, err := repo.Create(ctx, types.Account{Email: "a@b.com", PasswordHash: "old"})
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "digest", expiry))

	got, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	*got.ResetTokenExpiry = time.Time{}

	again, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, again.ResetTokenExpiry.IsZero())
}
