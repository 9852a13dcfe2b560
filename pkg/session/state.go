package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
)

// ErrMembershipChanged is returned by Reorder when the new order does not
// contain exactly the tasks of the run.
var ErrMembershipChanged = errors.New("reorder must keep the same tasks")

// Persister is where State mirrors itself after every mutation.
// Both Manager and any ports.SessionStore satisfy it.
type Persister interface {
	Save(ctx context.Context, key string, snap *domain.Snapshot) error
	Delete(ctx context.Context, key string) error
}

// State is the authoritative in-memory model of the current run.
// It is safe for concurrent use: grading goroutines record results while
// the front-end navigates.
type State struct {
	key     string
	persist Persister
	logger  *slog.Logger
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))

	mu          sync.Mutex
	tasks       []domain.Task
	mode        domain.Mode
	index       int
	results     map[string]domain.TaskResult
	resultOrder []string
	examStart   time.Time
	randomSort  bool
	// gen changes whenever the run is replaced or cleared.
	gen uint64

	// persistMu orders snapshot capture and store writes so the last
	// completed write always carries the newest state.
	persistMu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]domain.Observer
	nextObs   int
}

// StateOption configures a State.
type StateOption func(*State)

// WithStateLogger sets the logger used to report persistence failures.
func WithStateLogger(logger *slog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StateOption {
	return func(s *State) {
		s.now = now
	}
}

// WithShuffle replaces the random permutation used by ToggleSortMode.
func WithShuffle(shuffle func(n int, swap func(i, j int))) StateOption {
	return func(s *State) {
		s.shuffle = shuffle
	}
}

// NewState creates an empty State persisted under key. A nil persister
// keeps the state in memory only.
func NewState(persist Persister, key string, opts ...StateOption) *State {
	s := &State{
		key:       key,
		persist:   persist,
		logger:    logging.NewNop(),
		now:       time.Now,
		shuffle:   rand.Shuffle,
		results:   make(map[string]domain.TaskResult),
		observers: make(map[int]domain.Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers an observer for change events and returns a function
// that removes it.
func (s *State) Subscribe(fn domain.Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *State) notify(ev domain.ChangeEvent) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]domain.Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// commit persists the current state and then notifies observers.
// Persistence errors are logged and never returned.
func (s *State) commit(ctx context.Context, ev domain.ChangeEvent) {
	if s.persist != nil {
		s.persistMu.Lock()
		snap := s.Snapshot()
		if len(snap.SelectedTasks) > 0 {
			if err := s.persist.Save(ctx, s.key, snap); err != nil {
				s.logger.Warn("session save failed, continuing in memory",
					"key", s.key,
					"event", string(ev.Kind),
					"error", err,
				)
			}
		}
		s.persistMu.Unlock()
	}
	s.notify(ev)
}

// Start begins a new run with tasks in the given order. An empty selection
// leaves the state untouched and returns domain.ErrNoTasks.
func (s *State) Start(ctx context.Context, tasks []domain.Task, mode domain.Mode, timed bool) error {
	if len(tasks) == 0 {
		return domain.ErrNoTasks
	}
	s.mu.Lock()
	s.tasks = append([]domain.Task(nil), tasks...)
	s.mode = mode
	s.index = 0
	s.results = make(map[string]domain.TaskResult)
	s.resultOrder = nil
	s.randomSort = false
	s.examStart = time.Time{}
	if timed {
		s.examStart = s.now()
	}
	s.gen++
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeStarted, TaskID: tasks[0].ID})
	return nil
}

// Navigate moves the cursor by delta. Moves that would leave the task range
// are ignored. It reports whether the cursor moved.
func (s *State) Navigate(ctx context.Context, delta int) bool {
	s.mu.Lock()
	next := s.index + delta
	if delta == 0 || next < 0 || next >= len(s.tasks) {
		s.mu.Unlock()
		return false
	}
	s.index = next
	id := s.tasks[next].ID
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeNavigated, TaskID: id, Index: next})
	return true
}

// Select moves the cursor to index. Out of range indices are ignored.
func (s *State) Select(ctx context.Context, index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.tasks) {
		s.mu.Unlock()
		return false
	}
	s.index = index
	id := s.tasks[index].ID
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeNavigated, TaskID: id, Index: index})
	return true
}

// SelectID moves the cursor to the task with the given id.
func (s *State) SelectID(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := -1
	for i, t := range s.tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	s.mu.Unlock()
	if idx < 0 {
		return false
	}
	return s.Select(ctx, idx)
}

// Reorder replaces the task order. The cursor follows the task it pointed
// at before; if that task is somehow missing the cursor resets to 0.
func (s *State) Reorder(ctx context.Context, order []domain.Task) error {
	s.mu.Lock()
	if !sameMembers(s.tasks, order) {
		s.mu.Unlock()
		return ErrMembershipChanged
	}
	s.reorderLocked(order)
	idx := s.index
	id := s.tasks[idx].ID
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeReordered, TaskID: id, Index: idx})
	return nil
}

func (s *State) reorderLocked(order []domain.Task) {
	var currentID string
	if s.index < len(s.tasks) {
		currentID = s.tasks[s.index].ID
	}
	s.tasks = append([]domain.Task(nil), order...)
	s.index = 0
	for i, t := range s.tasks {
		if t.ID == currentID {
			s.index = i
			break
		}
	}
}

func sameMembers(a, b []domain.Task) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, t := range a {
		seen[t.ID]++
	}
	for _, t := range b {
		if seen[t.ID] == 0 {
			return false
		}
		seen[t.ID]--
	}
	return true
}

// ToggleSortMode flips between shuffled (flat) and categorized ordering and
// returns the new random-sort flag. The selected task stays selected.
func (s *State) ToggleSortMode(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false, domain.ErrNoSession
	}
	order := append([]domain.Task(nil), s.tasks...)
	s.randomSort = !s.randomSort
	random := s.randomSort
	if random {
		s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	} else {
		SortByCategory(order)
	}
	s.reorderLocked(order)
	idx := s.index
	id := s.tasks[idx].ID
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeReordered, TaskID: id, Index: idx})
	return random, nil
}

// SortByCategory orders tasks by category, then naturally by id.
func SortByCategory(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Category != tasks[j].Category {
			return tasks[i].Category < tasks[j].Category
		}
		return domain.CompareIDs(tasks[i].ID, tasks[j].ID) < 0
	})
}

// RecordResult upserts the grading outcome of a task.
func (s *State) RecordResult(ctx context.Context, taskID string, passed bool, points, maxPoints int) {
	s.record(ctx, nil, taskID, passed, points, maxPoints)
}

// RecordResultIn is RecordResult for the run identified by gen. It records
// nothing and returns false when that run was replaced or cleared.
func (s *State) RecordResultIn(ctx context.Context, gen uint64, taskID string, passed bool, points, maxPoints int) bool {
	return s.record(ctx, &gen, taskID, passed, points, maxPoints)
}

func (s *State) record(ctx context.Context, gen *uint64, taskID string, passed bool, points, maxPoints int) bool {
	s.mu.Lock()
	if gen != nil && *gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.results[taskID]; !ok {
		s.resultOrder = append(s.resultOrder, taskID)
	}
	s.results[taskID] = domain.TaskResult{
		TaskID:    taskID,
		Passed:    passed,
		Points:    points,
		MaxPoints: maxPoints,
		Graded:    true,
	}
	idx := s.index
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeResult, TaskID: taskID, Index: idx})
	return true
}

// Restore replaces the state with a saved snapshot. A nil snapshot or one
// without tasks is rejected with domain.ErrInvalidSnapshot and the state is
// left as it was.
func (s *State) Restore(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || len(snap.SelectedTasks) == 0 {
		return domain.ErrInvalidSnapshot
	}

	s.mu.Lock()
	s.tasks = append([]domain.Task(nil), snap.SelectedTasks...)
	s.mode = snap.CurrentMode
	if s.mode != domain.ModeExam {
		s.mode = domain.ModePractice
	}
	s.index = snap.CurrentTaskIndex
	if s.index < 0 || s.index >= len(s.tasks) {
		s.index = 0
	}
	s.results = make(map[string]domain.TaskResult, len(snap.TaskResults))
	s.resultOrder = nil
	for _, e := range snap.TaskResults {
		if _, ok := s.results[e.TaskID]; !ok {
			s.resultOrder = append(s.resultOrder, e.TaskID)
		}
		r := e.Result
		r.TaskID = e.TaskID
		s.results[e.TaskID] = r
	}
	s.examStart = time.Time{}
	if snap.ExamStartTime > 0 {
		s.examStart = time.UnixMilli(snap.ExamStartTime)
	}
	s.randomSort = false
	s.gen++
	idx := s.index
	id := s.tasks[idx].ID
	s.mu.Unlock()

	s.commit(ctx, domain.ChangeEvent{Kind: domain.ChangeRestored, TaskID: id, Index: idx})
	return nil
}

// Snapshot captures the full state in its persisted layout.
func (s *State) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &domain.Snapshot{
		SelectedTasks:    append([]domain.Task(nil), s.tasks...),
		CurrentMode:      s.mode,
		CurrentTaskIndex: s.index,
		TaskResults:      make([]domain.ResultEntry, 0, len(s.resultOrder)),
		Timestamp:        s.now().UnixMilli(),
	}
	for _, id := range s.resultOrder {
		snap.TaskResults = append(snap.TaskResults, domain.ResultEntry{TaskID: id, Result: s.results[id]})
	}
	if !s.examStart.IsZero() {
		snap.ExamStartTime = s.examStart.UnixMilli()
	}
	return snap
}

// Abandon discards the run and its persisted copy.
func (s *State) Abandon(ctx context.Context) error {
	_, err := s.clear(ctx, nil)
	return err
}

// Complete ends a finished run. The persisted copy is removed so the run
// cannot be resumed.
func (s *State) Complete(ctx context.Context) error {
	_, err := s.clear(ctx, nil)
	return err
}

// CompleteIn ends the run identified by gen. A run that was replaced in the
// meantime is left alone and false is returned.
func (s *State) CompleteIn(ctx context.Context, gen uint64) (bool, error) {
	return s.clear(ctx, &gen)
}

// Generation identifies the current run. It changes on Start, Restore and
// when the run is cleared.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *State) clear(ctx context.Context, gen *uint64) (bool, error) {
	// persistMu is held across reset and delete so a run started right
	// after cannot have its first save removed.
	s.persistMu.Lock()
	s.mu.Lock()
	if gen != nil && *gen != s.gen {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return false, nil
	}
	s.tasks = nil
	s.mode = ""
	s.index = 0
	s.results = make(map[string]domain.TaskResult)
	s.resultOrder = nil
	s.examStart = time.Time{}
	s.randomSort = false
	s.gen++
	s.mu.Unlock()

	var err error
	if s.persist != nil {
		err = s.persist.Delete(ctx, s.key)
		if err != nil {
			s.logger.Warn("session delete failed", "key", s.key, "error", err)
			err = fmt.Errorf("delete session %q: %w", s.key, err)
		}
	}
	s.persistMu.Unlock()

	s.notify(domain.ChangeEvent{Kind: domain.ChangeCleared})
	return true, err
}

// Tasks returns a copy of the selected tasks in display order.
func (s *State) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks...)
}

// Len returns the number of selected tasks.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Mode returns the run mode, empty before a run starts.
func (s *State) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Index returns the cursor position.
func (s *State) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Current returns the task under the cursor.
func (s *State) Current() (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return domain.Task{}, false
	}
	return s.tasks[s.index], true
}

// Result returns the latest result of a task, if it was graded.
func (s *State) Result(taskID string) (domain.TaskResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[taskID]
	return r, ok
}

// Results returns a copy of all results keyed by task id.
func (s *State) Results() map[string]domain.TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.TaskResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// GradedCount returns how many tasks have a result.
func (s *State) GradedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.results {
		if r.Graded {
			n++
		}
	}
	return n
}

// Active reports whether a run is in progress.
func (s *State) Active() bool {
	return s.Len() > 0
}

// ExamStartTime returns when the timed run started, zero when untimed.
func (s *State) ExamStartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examStart
}

// RandomSort reports whether the run is in shuffled (flat) mode.
func (s *State) RandomSort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randomSort
}
