package auth

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-ohms-auth/internal/types"
)

func newTestCredentialStore() *CredentialStore {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewCredentialStore(bcrypt.MinCost, 2, logger)
}

func TestCredentialStore_SetPassword(t *testing.T) {
	store := newTestCredentialStore()
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		user := &types.User{Username: "alice"}
		require.NoError(t, store.SetPassword(ctx, user, "Alice123!"))

		assert.NotEmpty(t, user.PasswordHash)
		assert.NotEqual(t, "Alice123!", user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Alice123!")))
	})

	t.Run("PolicyFailureLeavesHashUntouched", func(t *testing.T) {
		user := &types.User{Username: "alice", PasswordHash: "previous"}
		err := store.SetPassword(ctx, user, "alice123")

		var ve *types.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "uppercase", ve.Rule)
		assert.Equal(t, "previous", user.PasswordHash)
	})

	t.Run("SaltedHashesDiffer", func(t *testing.T) {
		a := &types.User{}
		b := &types.User{}
		require.NoError(t, store.SetPassword(ctx, a, "Alice123!"))
		require.NoError(t, store.SetPassword(ctx, b, "Alice123!"))
		assert.NotEqual(t, a.PasswordHash, b.PasswordHash)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		// Occupy every slot so Acquire has to wait on the cancelled context.
		require.NoError(t, store.slots.Acquire(ctx, 2))
		defer store.slots.Release(2)

		user := &types.User{}
		err := store.SetPassword(cctx, user, "Alice123!")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, user.PasswordHash)
	})
}

func TestCredentialStore_CheckPassword(t *testing.T) {
	store := newTestCredentialStore()
	ctx := context.Background()

	user := &types.User{Username: "alice"}
	require.NoError(t, store.SetPassword(ctx, user, "Alice123!"))

	assert.True(t, store.CheckPassword(ctx, user, "Alice123!"))
	assert.False(t, store.CheckPassword(ctx, user, "alice123!"))
	assert.False(t, store.CheckPassword(ctx, user, ""))
	assert.False(t, store.CheckPassword(ctx, nil, "Alice123!"))
	assert.False(t, store.CheckPassword(ctx, &types.User{}, "Alice123!"))
}

func TestCredentialStore_ConcurrentHashing(t *testing.T) {
	store := newTestCredentialStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	users := make([]*types.User, 8)
	for i := range users {
		users[i] = &types.User{}
		wg.Add(1)
		go func(u *types.User) {
			defer wg.Done()
			assert.NoError(t, store.SetPassword(ctx, u, "Alice123!"))
		}(users[i])
	}
	wg.Wait()

	for _, u := range users {
		assert.True(t, store.CheckPassword(ctx, u, "Alice123!"))
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a.b+c@sub.example.org"}
	invalid := []string{"", "alice", "alice@", "@example.com", "alice@example", "al ice@example.com", "a@b@c.com"}

	for _, e := range valid {
		assert.NoError(t, ValidateEmail(e), e)
	}
	for _, e := range invalid {
		err := ValidateEmail(e)
		var ve *types.ValidationError
		if assert.ErrorAs(t, err, &ve, e) {
			assert.Equal(t, "email", ve.Field)
		}
	}
}
