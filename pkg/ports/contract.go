package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		SelectedTasks: []domain.Task{
			{ID: "users-01", Description: "Create user alice", Category: "users-groups"},
			{ID: "lvm-02", Description: "Extend the vg", Category: "storage", Target: domain.TargetNode2},
		},
		CurrentMode:      domain.ModeExam,
		CurrentTaskIndex: 1,
		TaskResults: []domain.ResultEntry{
			{TaskID: "users-01", Result: domain.TaskResult{TaskID: "users-01", Passed: true, Points: 10, MaxPoints: 10, Graded: true}},
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	key := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot()

		err := store.Save(ctx, key, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.SelectedTasks, loaded.SelectedTasks)
		assert.Equal(t, domain.ModeExam, loaded.CurrentMode)
		assert.Equal(t, 1, loaded.CurrentTaskIndex)
		require.Len(t, loaded.TaskResults, 1)
		assert.Equal(t, "users-01", loaded.TaskResults[0].TaskID)
		assert.True(t, loaded.TaskResults[0].Result.Passed)
		assert.Equal(t, snap.Timestamp, loaded.Timestamp)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := contractSnapshot()
		snap.CurrentTaskIndex = 0
		require.NoError(t, store.Save(ctx, key, snap))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.CurrentTaskIndex)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, contractSnapshot()))

		err := store.Delete(ctx, key)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, key), "deleting a missing key is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := key + "-1"
		id2 := key + "-2"
		_ = store.Save(ctx, id1, contractSnapshot())
		_ = store.Save(ctx, id2, contractSnapshot())

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, id1)
		assert.Contains(t, keys, id2)
	})
}
