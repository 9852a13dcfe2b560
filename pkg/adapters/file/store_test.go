package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/labexam/pkg/adapters/file"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.New(t.TempDir()))
}

func TestStore_DefaultPath(t *testing.T) {
	s := file.New("")
	assert.Equal(t, filepath.Join(".labexam", "sessions"), s.BasePath)
}

func TestStore_WritesJSONDocument(t *testing.T) {
	dir := t.TempDir()
	s := file.New(dir)
	ctx := context.Background()

	snap := &domain.Snapshot{
		SelectedTasks: []domain.Task{{ID: "users-01", Category: "users"}},
		CurrentMode:   domain.ModePractice,
		TaskResults: []domain.ResultEntry{
			{TaskID: "users-01", Result: domain.TaskResult{TaskID: "users-01", Passed: true, Points: 5, MaxPoints: 5, Graded: true}},
		},
		Timestamp: 1700000000000,
	}
	require.NoError(t, s.Save(ctx, "examState", snap))

	data, err := os.ReadFile(filepath.Join(dir, "examState.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"currentMode": "practice"`)
	assert.Contains(t, string(data), `"users-01",`)

	// No temp files remain after a successful save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_ListSkipsTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s := file.New(dir)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", &domain.Snapshot{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-a-123.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestStore_ListMissingDirectory(t *testing.T) {
	s := file.New(filepath.Join(t.TempDir(), "missing"))
	keys, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	_, err := file.New(dir).Load(context.Background(), "broken")
	assert.ErrorIs(t, err, domain.ErrInvalidSnapshot)
}

func TestStore_RejectsUnsafeKeys(t *testing.T) {
	s := file.New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", "../escape", `a\b`, "..", "tmp-x"} {
		err := s.Save(ctx, key, &domain.Snapshot{})
		assert.ErrorIs(t, err, file.ErrInvalidKey, key)
	}
}
