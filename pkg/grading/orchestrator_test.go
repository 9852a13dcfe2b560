package grading_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/labexam/internal/testutils"
	"github.com/aretw0/labexam/pkg/adapters/memory"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionKey = "rhcsa_session"

func threeTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Description: "first", Category: "storage"},
		{ID: "t2", Description: "second", Category: "users"},
		{ID: "t3", Description: "third", Category: "storage"},
	}
}

type fixture struct {
	lab   *testutils.FakeLab
	store *memory.Store
	state *session.State
	orch  *grading.Orchestrator
}

func newFixture(t *testing.T, tasks []domain.Task, mode domain.Mode, opts ...grading.Option) *fixture {
	t.Helper()
	lab := testutils.NewFakeLab(tasks...)
	store := memory.NewStore()
	st := session.NewState(store, sessionKey)
	require.NoError(t, st.Start(context.Background(), tasks, mode, false))

	base := []grading.Option{grading.WithSettle(10 * time.Millisecond), grading.WithTick(time.Millisecond)}
	orch := grading.New(lab, readiness.New(lab), append(base, opts...)...)
	return &fixture{lab: lab, store: store, state: st, orch: orch}
}

func (f *fixture) saved(t *testing.T) *domain.Snapshot {
	t.Helper()
	snap, err := f.store.Load(context.Background(), sessionKey)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	require.NoError(t, err)
	return snap
}

func gradeTable(table map[string]domain.GradeResponse) func(context.Context, string, domain.Target) (*domain.GradeResponse, error) {
	return func(ctx context.Context, id string, target domain.Target) (*domain.GradeResponse, error) {
		resp, ok := table[id]
		if !ok {
			return nil, testutils.ErrTransport
		}
		return &resp, nil
	}
}

func TestRun_ScoreBelowThreshold(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.GradeFunc = gradeTable(map[string]domain.GradeResponse{
		"t1": {Passed: true, Points: 10, MaxPoints: 10},
		"t2": {Passed: false, Points: 0, MaxPoints: 20},
		"t3": {Passed: true, Points: 30, MaxPoints: 30},
	})

	out, err := f.orch.Run(context.Background(), f.state, grading.NewToken())
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.Equal(t, 40, out.Score)
	assert.Equal(t, 60, out.Total)
	assert.False(t, out.Passed)
	assert.Equal(t, 67, out.Percentage())
	assert.Equal(t, map[string]domain.CategoryScore{
		"storage": {Earned: 40, Possible: 40},
		"users":   {Earned: 0, Possible: 20},
	}, out.Categories)

	subs := f.lab.Submitted()
	require.Len(t, subs, 1)
	assert.Equal(t, 40, subs[0].Score)
	assert.Equal(t, domain.ModeExam, subs[0].Mode)
	assert.Nil(t, subs[0].DurationSeconds)
	require.Len(t, subs[0].Checks, 3)
	assert.Equal(t, domain.CheckResult{Task: "t2", Check: "second", Category: "users", Passed: false, Points: 20}, subs[0].Checks[1])

	assert.True(t, out.Submitted)
	assert.Nil(t, f.saved(t), "completed run clears the saved session")
	assert.False(t, f.state.Active())
}

func TestRun_ConfigAbortsBeforeReboot(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.Config = &domain.VMConfig{Node1IP: "10.0.0.11"}

	out, err := f.orch.Run(context.Background(), f.state, grading.NewToken())
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseAborted, out.Phase)
	assert.Equal(t, readiness.ReasonConfig, out.Reason)
	assert.Equal(t, 0, f.lab.Calls("Reboot"))
	assert.Equal(t, 0, f.lab.Calls("Grade"))
	assert.Equal(t, 0, f.lab.Calls("SubmitResults"))
	assert.NotNil(t, f.saved(t))
}

func TestRun_NodeRebootFailureAborts(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.RebootFunc = func(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
		if node == domain.TargetNode1 {
			return &domain.RebootResponse{OK: false}, nil
		}
		return &domain.RebootResponse{OK: true}, nil
	}

	out, err := f.orch.Run(context.Background(), f.state, grading.NewToken())
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseAborted, out.Phase)
	assert.Contains(t, out.Message, "Node1: failed to come back online (timeout)")
	assert.NotContains(t, out.Message, "Node2")
	assert.Equal(t, 2, f.lab.Calls("Reboot"))
	assert.Equal(t, 0, f.lab.Calls("Grade"))
	require.Len(t, out.Nodes, 2)
	assert.True(t, out.Nodes[1].OK)
	assert.NotNil(t, f.saved(t))
}

func TestRun_RebootMessagesListEveryFailedNode(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModePractice)
	f.lab.RebootFunc = func(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
		if node == domain.TargetNode1 {
			return nil, testutils.ErrTransport
		}
		return &domain.RebootResponse{OK: false, Message: "ssh timeout"}, nil
	}

	out, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)
	assert.Equal(t, grading.PhaseAborted, out.Phase)
	assert.Equal(t, "Reboot issues: Node1: failed to come back online (timeout); Node2: ssh timeout", out.Message)
}

func TestRun_CancelDuringRebootWait(t *testing.T) {
	token := grading.NewToken()
	f := newFixture(t, threeTasks(), domain.ModeExam, grading.WithSettle(10*time.Second))
	f.lab.RebootFunc = func(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
		if node == domain.TargetNode2 {
			token.Cancel()
		}
		return &domain.RebootResponse{OK: true}, nil
	}

	start := time.Now()
	out, err := f.orch.Run(context.Background(), f.state, token)
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseCancelled, out.Phase)
	assert.Less(t, time.Since(start), 5*time.Second, "cancel cuts the settle wait short")
	assert.Equal(t, 0, f.lab.Calls("Grade"))
	assert.Equal(t, 0, f.lab.Calls("SubmitResults"))

	saved := f.saved(t)
	require.NotNil(t, saved)
	assert.Len(t, saved.SelectedTasks, 3)
}

func TestRun_ReplacedRunIsKept(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModePractice)
	busy := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.lab.GradeFunc = func(ctx context.Context, id string, target domain.Target) (*domain.GradeResponse, error) {
		once.Do(func() { close(busy) })
		<-release
		return &domain.GradeResponse{Passed: true, Points: 5, MaxPoints: 5}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.Run(context.Background(), f.state, nil)
	}()

	<-busy
	next := []domain.Task{
		{ID: "n1", Category: "net"},
		{ID: "n2", Category: "net"},
		{ID: "n3", Category: "net"},
		{ID: "n4", Category: "net"},
	}
	require.NoError(t, f.state.Start(context.Background(), next, domain.ModePractice, false))
	close(release)
	<-done

	assert.True(t, f.state.Active())
	assert.Equal(t, 4, f.state.Len())
	assert.Zero(t, f.state.GradedCount(), "old results stay out of the new run")

	saved := f.saved(t)
	require.NotNil(t, saved, "new run still persisted")
	assert.Len(t, saved.SelectedTasks, 4)
	assert.Empty(t, saved.TaskResults)
	assert.Len(t, f.lab.Submitted(), 1, "old run is still reported")
}

func TestRun_CancelWinsOverReadyPreflight(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	token := grading.NewToken()
	token.Cancel()

	out, err := f.orch.Run(context.Background(), f.state, token)
	require.NoError(t, err)
	assert.Equal(t, grading.PhaseCancelled, out.Phase)
	assert.Equal(t, 1, f.lab.Calls("TestConnection"))
	assert.Equal(t, 0, f.lab.Calls("Reboot"))
}

func TestRun_CancelDuringGradingKeepsSession(t *testing.T) {
	token := grading.NewToken()
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.GradeFunc = func(ctx context.Context, id string, target domain.Target) (*domain.GradeResponse, error) {
		token.Cancel()
		return &domain.GradeResponse{Passed: true, Points: 5, MaxPoints: 5}, nil
	}

	out, err := f.orch.Run(context.Background(), f.state, token)
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseCancelled, out.Phase)
	assert.Equal(t, "Graded 3 of 3 tasks.", out.Message)
	assert.Equal(t, 3, f.lab.Calls("Grade"), "in-flight requests are not aborted")
	assert.Equal(t, 0, f.lab.Calls("SubmitResults"))

	saved := f.saved(t)
	require.NotNil(t, saved)
	assert.Len(t, saved.TaskResults, 3)
	assert.Equal(t, 3, f.state.GradedCount())
}

func TestRun_TransportFailuresAreIsolated(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModePractice)
	f.lab.GradeFunc = gradeTable(map[string]domain.GradeResponse{
		"t1": {Passed: true, Points: 10, MaxPoints: 10},
		"t2": {Error: "Grader failed", Message: "Flask must be run with sudo"},
	})

	var mu sync.Mutex
	statuses := map[string]grading.TaskStatus{}
	hooks := grading.Hooks{OnTaskStatus: func(id string, s grading.TaskStatus) {
		mu.Lock()
		statuses[id] = s
		mu.Unlock()
	}}
	f.orch = grading.New(f.lab, readiness.New(f.lab), grading.WithSettle(0), grading.WithTick(0), grading.WithHooks(hooks))

	out, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.Equal(t, 10, out.Score)
	assert.Equal(t, 10, out.Total)
	assert.True(t, out.Passed)
	assert.Equal(t, grading.StatusPassed, statuses["t1"])
	assert.Equal(t, grading.StatusError, statuses["t2"])
	assert.Equal(t, grading.StatusError, statuses["t3"])
	assert.Equal(t, domain.CheckResult{Task: "t3", Check: "third", Category: "storage"}, out.Checks[2])

	assert.False(t, out.Checks[1].Passed, "grader failure is not a pass")
}

func TestRun_ZeroTotalFails(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.GradeFunc = gradeTable(nil)

	var mu sync.Mutex
	var recorded []domain.TaskResult
	f.state.Subscribe(func(ev domain.ChangeEvent) {
		if ev.Kind == domain.ChangeResult {
			r, _ := f.state.Result(ev.TaskID)
			mu.Lock()
			recorded = append(recorded, r)
			mu.Unlock()
		}
	})

	out, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)

	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.Equal(t, 0, out.Total)
	assert.False(t, out.Passed)
	require.Len(t, f.lab.Submitted(), 1)
	assert.False(t, f.lab.Submitted()[0].Passed)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, recorded, 3)
	for _, r := range recorded {
		assert.False(t, r.Passed)
		assert.Equal(t, 0, r.Points)
	}
}

func TestRun_AggregationIsOrderIndependent(t *testing.T) {
	tasks := make([]domain.Task, 12)
	table := map[string]domain.GradeResponse{}
	for i := range tasks {
		id := string(rune('a' + i))
		tasks[i] = domain.Task{ID: id, Category: []string{"x", "y", "z"}[i%3]}
		table[id] = domain.GradeResponse{Passed: i%2 == 0, Points: i * (i % 2), MaxPoints: i + 1}
	}

	run := func(seed uint64) *grading.Outcome {
		rng := rand.New(rand.NewPCG(seed, seed))
		delays := map[string]time.Duration{}
		for _, task := range tasks {
			delays[task.ID] = time.Duration(rng.IntN(5)) * time.Millisecond
		}
		f := newFixture(t, tasks, domain.ModePractice, grading.WithSettle(0))
		grade := gradeTable(table)
		f.lab.GradeFunc = func(ctx context.Context, id string, target domain.Target) (*domain.GradeResponse, error) {
			time.Sleep(delays[id])
			return grade(ctx, id, target)
		}
		out, err := f.orch.Run(context.Background(), f.state, nil)
		require.NoError(t, err)
		return out
	}

	first := run(1)
	for seed := uint64(2); seed < 5; seed++ {
		other := run(seed)
		assert.Equal(t, first.Score, other.Score)
		assert.Equal(t, first.Total, other.Total)
		assert.Equal(t, first.Categories, other.Categories)
		assert.Equal(t, first.Checks, other.Checks)
	}
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	var phases []grading.Phase
	hooks := grading.Hooks{
		OnProgress: func(done, total int) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
		},
		OnPhase: func(p grading.Phase, msg string) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		},
	}
	f := newFixture(t, testutils.SampleTasks(), domain.ModePractice, grading.WithHooks(hooks), grading.WithConcurrency(2))

	_, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, []grading.Phase{
		grading.PhasePreflight, grading.PhaseRebooting, grading.PhaseGrading, grading.PhaseCompleted,
	}, phases)
}

func TestRun_RebootTickerCapped(t *testing.T) {
	var mu sync.Mutex
	var last float64
	var ticks int
	hooks := grading.Hooks{OnRebootProgress: func(p float64, stage string) {
		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, p, last)
		assert.LessOrEqual(t, p, 95.0)
		assert.NotEmpty(t, stage)
		last = p
		ticks++
	}}
	f := newFixture(t, threeTasks(), domain.ModePractice, grading.WithHooks(hooks), grading.WithSettle(30*time.Millisecond))

	_, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, ticks)
}

func TestRun_SubmitFailureStillCompletes(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	f.lab.SubmitErr = testutils.ErrTransport

	out, err := f.orch.Run(context.Background(), f.state, nil)
	require.NoError(t, err)
	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.True(t, out.Passed)
	assert.False(t, out.Submitted)
	assert.Nil(t, f.saved(t))
}

func TestRun_DurationFromExamStart(t *testing.T) {
	ctx := context.Background()
	lab := testutils.NewFakeLab(threeTasks()...)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	st := session.NewState(nil, sessionKey, session.WithClock(func() time.Time { return start }))
	require.NoError(t, st.Start(ctx, threeTasks(), domain.ModeExam, true))

	orch := grading.New(lab, readiness.New(lab),
		grading.WithSettle(0),
		grading.WithClock(func() time.Time { return start.Add(90*time.Minute + 30*time.Second) }),
	)
	out, err := orch.Run(ctx, st, nil)
	require.NoError(t, err)

	require.NotNil(t, out.DurationSeconds)
	assert.Equal(t, int64(5430), *out.DurationSeconds)
	assert.Equal(t, int64(5430), *lab.Submitted()[0].DurationSeconds)
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t, threeTasks(), domain.ModeExam)
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	f.lab.RebootFunc = func(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
		entered <- struct{}{}
		<-release
		return &domain.RebootResponse{OK: true}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.orch.Run(context.Background(), f.state, nil)
		assert.NoError(t, err)
	}()
	<-entered
	assert.True(t, f.orch.Running())

	_, err := f.orch.Run(context.Background(), f.state, nil)
	assert.ErrorIs(t, err, domain.ErrGradingInProgress)

	close(release)
	<-done
	assert.Len(t, f.lab.Submitted(), 1, "only one submission")
	assert.False(t, f.orch.Running())
}

func TestRun_NoSession(t *testing.T) {
	lab := testutils.NewFakeLab()
	orch := grading.New(lab, readiness.New(lab))
	_, err := orch.Run(context.Background(), session.NewState(nil, sessionKey), nil)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestPasses(t *testing.T) {
	assert.False(t, grading.Passes(40, 60))
	assert.True(t, grading.Passes(42, 60))
	assert.True(t, grading.Passes(7, 10))
	assert.False(t, grading.Passes(0, 0))
}
