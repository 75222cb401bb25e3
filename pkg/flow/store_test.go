package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("should round-trip a flow document", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		f := &Flow{
			UUID:        "flow-1",
			Name:        "weekly digest",
			Description: "summarize and send",
			Status:      StatusComplete,
			Active:      true,
			Steps: []Step{
				{Type: StepStart},
				{Type: StepLLMInstruction, Config: StepConfig{Instruction: "summarize", ResultVariable: "summary"}},
			},
			CreatedAt: time.Now(),
		}
		require.NoError(t, store.Put(f))

		loaded, err := store.Get("flow-1")
		require.NoError(t, err)
		assert.Equal(t, "weekly digest", loaded.Name)
		assert.Len(t, loaded.Steps, 2)
		assert.Equal(t, StatusComplete, loaded.Status)
	})

	t.Run("should report missing flows", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		_, err := store.Get("nope")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should reject path-escaping keys", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		_, err := store.Get("../etc/passwd")
		assert.Error(t, err)

		err = store.Put(&Flow{UUID: "a/b"})
		assert.Error(t, err)

		err = store.Put(&Flow{})
		assert.Error(t, err)
	})

	t.Run("should list all flows", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		require.NoError(t, store.Put(&Flow{UUID: "one", Status: StatusComplete}))
		require.NoError(t, store.Put(&Flow{UUID: "two", Status: StatusBuilding}))

		flows, err := store.List()
		require.NoError(t, err)
		assert.Len(t, flows, 2)
	})

	t.Run("should delete flows", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		require.NoError(t, store.Put(&Flow{UUID: "gone", Status: StatusComplete}))
		require.NoError(t, store.Delete("gone"))

		_, err := store.Get("gone")
		assert.Error(t, err)

		// Deleting again is a no-op
		assert.NoError(t, store.Delete("gone"))
	})

	t.Run("should isolate held snapshots from caller mutation", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		f := &Flow{
			UUID:          "snap",
			Status:        StatusBuilding,
			BuildProgress: &BuildProgress{Current: 1, Total: 3, Message: "working"},
		}
		require.NoError(t, store.Put(f))

		held, err := store.Get("snap")
		require.NoError(t, err)

		// The writer keeps mutating its own value and re-persists it
		f.Status = StatusComplete
		f.Name = "mutated"
		f.Steps = append(f.Steps, Step{Type: StepStart})
		f.BuildProgress.Current = 3
		require.NoError(t, store.Put(f))

		assert.Equal(t, StatusBuilding, held.Status)
		assert.Empty(t, held.Name)
		assert.Empty(t, held.Steps)
		assert.Equal(t, 1, held.BuildProgress.Current)

		latest, err := store.Get("snap")
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, latest.Status)
		assert.Equal(t, 3, latest.BuildProgress.Current)
	})

	t.Run("should persist each building snapshot", func(t *testing.T) {
		store, cleanup := setupTestStore(t)
		defer cleanup()

		f := &Flow{UUID: "progressive", Status: StatusBuilding}
		for i := 1; i <= 3; i++ {
			f.BuildProgress = &BuildProgress{Current: i, Total: 3, Message: "step"}
			require.NoError(t, store.Put(f))

			loaded, err := store.Get("progressive")
			require.NoError(t, err)
			assert.Equal(t, i, loaded.BuildProgress.Current)
		}
	})
}
