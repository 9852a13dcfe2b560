package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore keeps the last saved snapshot per key.
type recordingStore struct {
	mu      sync.Mutex
	last    map[string]*domain.Snapshot
	saves   int
	deletes int
	saveErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{last: make(map[string]*domain.Snapshot)}
}

func (r *recordingStore) Save(ctx context.Context, key string, snap *domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.last[key] = snap
	return nil
}

func (r *recordingStore) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.last, key)
	return nil
}

func (r *recordingStore) get(key string) *domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[key]
}

const key = "rhcsa_session"

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: "net-2", Category: "networking"},
		{ID: "users-1", Category: "users"},
		{ID: "lvm-10", Category: "storage"},
		{ID: "lvm-2", Category: "storage"},
		{ID: "net-1", Category: "networking"},
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestState_Start(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	st := session.NewState(store, key, session.WithClock(fixedClock()))

	var events []domain.ChangeEvent
	st.Subscribe(func(ev domain.ChangeEvent) { events = append(events, ev) })

	err := st.Start(ctx, nil, domain.ModeExam, true)
	assert.ErrorIs(t, err, domain.ErrNoTasks)
	assert.False(t, st.Active())
	assert.Nil(t, store.get(key))
	assert.Empty(t, events)

	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModeExam, true))
	assert.Equal(t, 0, st.Index())
	assert.Equal(t, domain.ModeExam, st.Mode())
	assert.Equal(t, fixedClock()(), st.ExamStartTime())
	assert.Equal(t, "net-2", st.Tasks()[0].ID)

	saved := store.get(key)
	require.NotNil(t, saved)
	assert.Len(t, saved.SelectedTasks, 5)
	assert.Equal(t, fixedClock()().UnixMilli(), saved.Timestamp)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ChangeStarted, events[0].Kind)

	// A new run resets cursor and results.
	require.True(t, st.Navigate(ctx, 2))
	st.RecordResult(ctx, "net-2", true, 5, 5)
	require.NoError(t, st.Start(ctx, sampleTasks()[:2], domain.ModePractice, false))
	assert.Equal(t, 0, st.Index())
	assert.Empty(t, st.Results())
	assert.True(t, st.ExamStartTime().IsZero())
}

func TestState_NavigateStaysInRange(t *testing.T) {
	ctx := context.Background()
	st := session.NewState(nil, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	n := st.Len()

	deltas := []int{-1, 1, 1, 1, 1, 1, 1, -1, -3, 7, -9, 1}
	for _, d := range deltas {
		before := st.Index()
		moved := st.Navigate(ctx, d)
		after := st.Index()
		assert.GreaterOrEqual(t, after, 0)
		assert.Less(t, after, n)
		if moved {
			assert.Equal(t, before+d, after)
		} else {
			assert.Equal(t, before, after)
		}
	}

	assert.False(t, st.Select(ctx, n))
	assert.False(t, st.Select(ctx, -1))
	assert.True(t, st.Select(ctx, n-1))
	assert.True(t, st.SelectID(ctx, "users-1"))
	assert.Equal(t, 1, st.Index())
	assert.False(t, st.SelectID(ctx, "ghost"))
}

func TestState_NavigatePersists(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	st := session.NewState(store, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))

	require.True(t, st.Navigate(ctx, 1))
	assert.Equal(t, 1, store.get(key).CurrentTaskIndex)

	saves := store.saves
	assert.False(t, st.Navigate(ctx, -5))
	assert.Equal(t, saves, store.saves, "ignored moves do not persist")
}

func TestState_ReorderPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	st := session.NewState(nil, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	require.True(t, st.Select(ctx, 2)) // lvm-10

	tasks := st.Tasks()
	reversed := make([]domain.Task, len(tasks))
	for i, task := range tasks {
		reversed[len(tasks)-1-i] = task
	}
	require.NoError(t, st.Reorder(ctx, reversed))

	current, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, "lvm-10", current.ID)
	assert.Equal(t, 2, st.Index())

	err := st.Reorder(ctx, reversed[:3])
	assert.ErrorIs(t, err, session.ErrMembershipChanged)

	swapped := append([]domain.Task(nil), reversed...)
	swapped[0] = domain.Task{ID: "intruder"}
	assert.ErrorIs(t, st.Reorder(ctx, swapped), session.ErrMembershipChanged)
}

func TestState_ToggleSortModeKeepsSelection(t *testing.T) {
	ctx := context.Background()
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	st := session.NewState(nil, key, session.WithShuffle(reverse))
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	require.True(t, st.SelectID(ctx, "users-1"))

	random, err := st.ToggleSortMode(ctx)
	require.NoError(t, err)
	assert.True(t, random)
	assert.True(t, st.RandomSort())
	current, _ := st.Current()
	assert.Equal(t, "users-1", current.ID)
	assert.Equal(t, "net-1", st.Tasks()[0].ID)

	random, err = st.ToggleSortMode(ctx)
	require.NoError(t, err)
	assert.False(t, random)
	current, _ = st.Current()
	assert.Equal(t, "users-1", current.ID)

	ids := make([]string, 0, st.Len())
	for _, task := range st.Tasks() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"net-1", "net-2", "lvm-2", "lvm-10", "users-1"}, ids)
	assert.Equal(t, 4, st.Index())

	_, err = session.NewState(nil, key).ToggleSortMode(ctx)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestState_RecordResultUpserts(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	st := session.NewState(store, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModeExam, false))

	st.RecordResult(ctx, "lvm-2", true, 10, 10)
	st.RecordResult(ctx, "lvm-2", false, 0, 10)

	results := st.Results()
	require.Len(t, results, 1)
	assert.False(t, results["lvm-2"].Passed)
	assert.True(t, results["lvm-2"].Graded)
	assert.Equal(t, 1, st.GradedCount())

	saved := store.get(key)
	require.Len(t, saved.TaskResults, 1)
	assert.Equal(t, "lvm-2", saved.TaskResults[0].TaskID)
	assert.False(t, saved.TaskResults[0].Result.Passed)

	_, ok := st.Result("net-1")
	assert.False(t, ok)
}

func TestState_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := session.NewState(nil, key, session.WithClock(fixedClock()))
	require.NoError(t, src.Start(ctx, sampleTasks(), domain.ModeExam, true))
	require.True(t, src.Select(ctx, 3))
	src.RecordResult(ctx, "users-1", true, 10, 10)
	src.RecordResult(ctx, "lvm-2", false, 0, 20)

	snap := src.Snapshot()

	store := newRecordingStore()
	dst := session.NewState(store, key)
	var restored bool
	dst.Subscribe(func(ev domain.ChangeEvent) { restored = ev.Kind == domain.ChangeRestored })
	require.NoError(t, dst.Restore(ctx, snap))

	assert.True(t, restored)
	assert.Equal(t, src.Tasks(), dst.Tasks())
	assert.Equal(t, 3, dst.Index())
	assert.Equal(t, src.Results(), dst.Results())
	assert.Equal(t, domain.ModeExam, dst.Mode())
	assert.Equal(t, src.ExamStartTime().UnixMilli(), dst.ExamStartTime().UnixMilli())
	assert.NotNil(t, store.get(key), "restore persists")
}

func TestState_RestoreClampsAndDefaults(t *testing.T) {
	ctx := context.Background()
	st := session.NewState(nil, key)

	require.NoError(t, st.Restore(ctx, &domain.Snapshot{
		SelectedTasks:    sampleTasks()[:2],
		CurrentTaskIndex: 7,
	}))
	assert.Equal(t, 0, st.Index())
	assert.Equal(t, domain.ModePractice, st.Mode())
	assert.True(t, st.ExamStartTime().IsZero())
}

func TestState_RestoreRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	st := session.NewState(nil, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModeExam, false))
	st.RecordResult(ctx, "net-2", true, 1, 1)

	assert.ErrorIs(t, st.Restore(ctx, nil), domain.ErrInvalidSnapshot)
	assert.ErrorIs(t, st.Restore(ctx, &domain.Snapshot{CurrentTaskIndex: 1}), domain.ErrInvalidSnapshot)

	assert.Equal(t, 5, st.Len(), "state untouched")
	assert.Len(t, st.Results(), 1)
}

func TestState_PersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	store.saveErr = errors.New("quota exceeded")
	st := session.NewState(store, key)

	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	st.RecordResult(ctx, "net-1", true, 3, 3)
	require.True(t, st.Navigate(ctx, 1))

	assert.Equal(t, 1, st.Index())
	assert.Len(t, st.Results(), 1)
	assert.Equal(t, 3, store.saves)
}

func TestState_CompleteAndAbandonClear(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	st := session.NewState(store, key)

	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModeExam, true))
	require.NoError(t, st.Complete(ctx))
	assert.Nil(t, store.get(key))
	assert.False(t, st.Active())
	_, ok := st.Current()
	assert.False(t, ok)

	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	var cleared bool
	st.Subscribe(func(ev domain.ChangeEvent) { cleared = ev.Kind == domain.ChangeCleared })
	require.NoError(t, st.Abandon(ctx))
	assert.True(t, cleared)
	assert.Nil(t, store.get(key))
	assert.Equal(t, 2, store.deletes)
}

func TestState_ConcurrentResultsLastWriteHasAll(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	st := session.NewState(store, key)
	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModeExam, false))

	var wg sync.WaitGroup
	for _, task := range sampleTasks() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			st.RecordResult(ctx, id, true, 1, 1)
		}(task.ID)
	}
	wg.Wait()

	assert.Equal(t, 5, st.GradedCount())
	assert.Len(t, store.get(key).TaskResults, 5)
}

func TestState_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	st := session.NewState(nil, key)
	calls := 0
	cancel := st.Subscribe(func(domain.ChangeEvent) { calls++ })

	require.NoError(t, st.Start(ctx, sampleTasks(), domain.ModePractice, false))
	cancel()
	st.Navigate(ctx, 1)

	assert.Equal(t, 1, calls)
}
