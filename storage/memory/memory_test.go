package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauthlab/codegrant/internal/testutil"
	"github.com/oauthlab/codegrant/storage"
	"github.com/oauthlab/codegrant/storage/memory"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	store.SetLogger(testutil.NewLogger())
	t.Cleanup(store.Stop)
	return store
}

func TestConsumeCode(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes a live code exactly once", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "code-abc", 10*time.Minute)

		got, err := store.ConsumeCode(ctx, "client-1", "code-abc")
		require.NoError(t, err)
		assert.Equal(t, "code-abc", got.Code)
		assert.Equal(t, "client-1", got.ClientID)

		_, err = store.ConsumeCode(ctx, "client-1", "code-abc")
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	})

	t.Run("rejects a code for the wrong client", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "code-abc", 10*time.Minute)

		_, err := store.ConsumeCode(ctx, "client-2", "code-abc")
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	})

	t.Run("rejects a mismatched code and keeps the slot", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "code-abc", 10*time.Minute)

		_, err := store.ConsumeCode(ctx, "client-1", "wrong-code")
		assert.ErrorIs(t, err, storage.ErrCodeMismatch)

		// A mismatch must not burn the real code.
		_, err = store.ConsumeCode(ctx, "client-1", "code-abc")
		assert.NoError(t, err)
	})

	t.Run("rejects and reclaims an expired code", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "code-abc", -time.Minute)

		_, err := store.ConsumeCode(ctx, "client-1", "code-abc")
		assert.ErrorIs(t, err, storage.ErrCodeExpired)

		_, err = store.ConsumeCode(ctx, "client-1", "code-abc")
		assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	})

	t.Run("exactly one concurrent consumer wins", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "code-abc", 10*time.Minute)

		const workers = 50
		var wg sync.WaitGroup
		results := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ConsumeCode(ctx, "client-1", "code-abc")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var successes int
		for err := range results {
			if err == nil {
				successes++
			} else {
				assert.ErrorIs(t, err, storage.ErrCodeNotFound)
			}
		}
		assert.Equal(t, 1, successes)
	})
}

func TestSaveCode(t *testing.T) {
	ctx := context.Background()

	t.Run("a new code overwrites the client's slot", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedCode(t, store, "client-1", "old-code", 10*time.Minute)
		testutil.SeedCode(t, store, "client-1", "new-code", 10*time.Minute)

		_, err := store.ConsumeCode(ctx, "client-1", "old-code")
		assert.ErrorIs(t, err, storage.ErrCodeMismatch)

		got, err := store.ConsumeCode(ctx, "client-1", "new-code")
		require.NoError(t, err)
		assert.Equal(t, "new-code", got.Code)
	})

	t.Run("rejects invalid records", func(t *testing.T) {
		store := newStore(t)

		assert.Error(t, store.SaveCode(ctx, nil))
		assert.Error(t, store.SaveCode(ctx, &storage.AuthorizationCode{Code: "x"}))
		assert.Error(t, store.SaveCode(ctx, &storage.AuthorizationCode{ClientID: "c"}))
	})
}

func TestTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("stored tokens validate until expiry", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedToken(t, store, "client-1", "tok-live", time.Hour)

		valid, err := store.HasToken(ctx, "tok-live")
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("unknown tokens are invalid", func(t *testing.T) {
		store := newStore(t)

		valid, err := store.HasToken(ctx, "never-issued")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("expired tokens are invalid", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedToken(t, store, "client-1", "tok-old", -time.Minute)

		valid, err := store.HasToken(ctx, "tok-old")
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("token values are never overwritten", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedToken(t, store, "client-1", "tok-dup", time.Hour)

		err := store.SaveToken(ctx, &storage.AccessToken{
			Token:     "tok-dup",
			ClientID:  "client-2",
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		})
		assert.ErrorIs(t, err, storage.ErrTokenExists)
	})
}

func TestClients(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies the registered secret", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedClient(t, store, "client-1", "s3cret")

		assert.NoError(t, store.VerifySecret(ctx, "client-1", "s3cret"))
		assert.ErrorIs(t, store.VerifySecret(ctx, "client-1", "wrong"), storage.ErrInvalidSecret)
		assert.ErrorIs(t, store.VerifySecret(ctx, "nobody", "s3cret"), storage.ErrClientNotFound)
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedClient(t, store, "client-1", "s3cret")

		err := store.SaveClient(ctx, &storage.Client{ID: "client-1", SecretHash: "other"})
		assert.ErrorIs(t, err, storage.ErrClientExists)
	})

	t.Run("looks up registered clients", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedClient(t, store, "client-1", "s3cret")

		client, err := store.GetClient(ctx, "client-1")
		require.NoError(t, err)
		assert.Equal(t, "client-1", client.ID)

		_, err = store.GetClient(ctx, "nobody")
		assert.ErrorIs(t, err, storage.ErrClientNotFound)

		clients, err := store.ListClients(ctx)
		require.NoError(t, err)
		assert.Len(t, clients, 1)
	})
}
