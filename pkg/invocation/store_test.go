package invocation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	tmpDir, err := os.MkdirTemp("", "invocation-test-*")
	require.NoError(t, err)

	store, err := NewStore(Config{
		DBPath:     filepath.Join(tmpDir, "invocations.db"),
		Logger:     zerolog.New(os.Stdout).Level(zerolog.ErrorLevel),
		CloseDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Shutdown()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func TestNewStore(t *testing.T) {
	t.Run("should fail without a database path", func(t *testing.T) {
		_, err := NewStore(Config{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database path")
	})
}

func TestCreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("should create and load an invocation by uuid", func(t *testing.T) {
		inv, err := store.Create(ctx, "do the thing", "ws-1", CreateOptions{
			UserID:   "user-1",
			ThreadID: "thread-1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, inv.UUID)
		assert.False(t, inv.Closed)

		loaded, err := store.Get(ctx, Criteria{UUID: inv.UUID})
		require.NoError(t, err)
		assert.Equal(t, inv.UUID, loaded.UUID)
		assert.Equal(t, "ws-1", loaded.WorkspaceID)
		assert.Equal(t, "user-1", loaded.UserID)
		assert.Equal(t, "thread-1", loaded.ThreadID)
		assert.Equal(t, "do the thing", loaded.Prompt)
	})

	t.Run("should load by workspace and thread", func(t *testing.T) {
		inv, err := store.Create(ctx, "threaded", "ws-2", CreateOptions{ThreadID: "thread-2"})
		require.NoError(t, err)

		loaded, err := store.Get(ctx, Criteria{WorkspaceID: "ws-2", ThreadID: "thread-2"})
		require.NoError(t, err)
		assert.Equal(t, inv.UUID, loaded.UUID)
	})

	t.Run("should return ErrNotFound for an unknown uuid", func(t *testing.T) {
		_, err := store.Get(ctx, Criteria{UUID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should reject creation without a workspace", func(t *testing.T) {
		_, err := store.Create(ctx, "prompt", "", CreateOptions{})
		assert.Error(t, err)
	})

	t.Run("should require at least one criterion", func(t *testing.T) {
		_, err := store.Get(ctx, Criteria{})
		assert.Error(t, err)
	})
}

func TestUpdatePrompt(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("should edit the prompt in place", func(t *testing.T) {
		inv, err := store.Create(ctx, "before", "ws-1", CreateOptions{})
		require.NoError(t, err)

		updated, err := store.UpdatePrompt(ctx, inv.UUID, "after")
		require.NoError(t, err)
		assert.Equal(t, "after", updated.Prompt)
	})

	t.Run("should return ErrNotFound for an unknown uuid", func(t *testing.T) {
		_, err := store.UpdatePrompt(ctx, "missing", "prompt")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClose(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("should close in the background", func(t *testing.T) {
		inv, err := store.Create(ctx, "prompt", "ws-1", CreateOptions{})
		require.NoError(t, err)

		store.Close(inv.UUID)
		store.WaitForPendingCloses()

		loaded, err := store.Get(ctx, Criteria{UUID: inv.UUID})
		require.NoError(t, err)
		assert.True(t, loaded.Closed)
	})

	t.Run("should be idempotent under concurrent closes", func(t *testing.T) {
		inv, err := store.Create(ctx, "prompt", "ws-1", CreateOptions{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Close(inv.UUID)
			}()
		}
		wg.Wait()
		store.WaitForPendingCloses()

		loaded, err := store.Get(ctx, Criteria{UUID: inv.UUID})
		require.NoError(t, err)
		assert.True(t, loaded.Closed)
	})

	t.Run("should not block the caller", func(t *testing.T) {
		inv, err := store.Create(ctx, "prompt", "ws-1", CreateOptions{})
		require.NoError(t, err)

		start := time.Now()
		store.Close(inv.UUID)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		store.WaitForPendingCloses()
	})

	t.Run("should tolerate closing an unknown uuid", func(t *testing.T) {
		store.Close("missing")
		store.WaitForPendingCloses()
	})
}
