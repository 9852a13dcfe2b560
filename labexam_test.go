package labexam_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/internal/testutils"
	"github.com/aretw0/labexam/pkg/adapters/memory"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBench(t *testing.T, lab *testutils.FakeLab, opts ...labexam.Option) (*labexam.Workbench, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	opts = append([]labexam.Option{
		labexam.WithGradingOptions(grading.WithSettle(0), grading.WithTick(time.Millisecond)),
	}, opts...)
	return labexam.New(lab, store, opts...), store
}

func TestStartPractice_PersistsRun(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	wb, store := newBench(t, lab)
	ctx := context.Background()

	require.NoError(t, wb.StartPractice(ctx, []string{"lvm-02", "users-01"}))

	ids := []string{}
	for _, task := range wb.State().Tasks() {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"users-01", "lvm-02"}, ids, "catalog order")
	assert.Equal(t, domain.ModePractice, wb.State().Mode())

	snap, err := store.Load(ctx, labexam.DefaultSessionKey)
	require.NoError(t, err)
	assert.Len(t, snap.SelectedTasks, 2)
	assert.Zero(t, snap.ExamStartTime)

	for _, cat := range []string{"storage", "users-groups"} {
		assert.True(t, wb.Collapse().Collapsed(cat), "categories start collapsed")
	}
}

func TestStartPractice_EmptySelection(t *testing.T) {
	wb, _ := newBench(t, testutils.NewFakeLab(testutils.SampleTasks()...))
	err := wb.StartPractice(context.Background(), []string{"nope"})
	assert.ErrorIs(t, err, domain.ErrNoTasks)
	assert.False(t, wb.State().Active())
}

func TestStartCategory(t *testing.T) {
	wb, _ := newBench(t, testutils.NewFakeLab(testutils.SampleTasks()...))
	ctx := context.Background()

	require.NoError(t, wb.StartCategory(ctx, "storage"))
	assert.Equal(t, 2, wb.State().Len())

	assert.ErrorIs(t, wb.StartCategory(ctx, "networking"), domain.ErrNoTasks)
}

func TestStartExam_ReadinessGate(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	lab.Config = &domain.VMConfig{Node1IP: "10.0.0.11"}
	wb, _ := newBench(t, lab)

	err := wb.StartExam(context.Background(), 3)
	var notReady *labexam.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, readiness.ReasonConfig, notReady.Result.Reason)
	assert.Zero(t, lab.Calls("RandomTasks"), "no tasks drawn when not ready")
}

func TestStartExam_TimedRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	wb, _ := newBench(t, lab,
		labexam.WithClock(func() time.Time { return now }),
		labexam.WithExam(4, 2*time.Hour),
	)

	require.NoError(t, wb.StartExam(context.Background(), 0))
	assert.Equal(t, 4, wb.State().Len(), "configured exam size")
	assert.Equal(t, domain.ModeExam, wb.State().Mode())

	deadline, ok := wb.Deadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(2*time.Hour), deadline)

	now = now.Add(30 * time.Minute)
	remaining, ok := wb.Remaining()
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, remaining)

	now = now.Add(5 * time.Hour)
	remaining, _ = wb.Remaining()
	assert.Zero(t, remaining)
}

func TestPracticeHasNoDeadline(t *testing.T) {
	wb, _ := newBench(t, testutils.NewFakeLab(testutils.SampleTasks()...))
	require.NoError(t, wb.StartCategory(context.Background(), "storage"))
	_, ok := wb.Remaining()
	assert.False(t, ok)
}

func TestResume(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	store := memory.NewStore()
	ctx := context.Background()

	first := labexam.New(lab, store)
	_, err := first.Resume(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, first.StartCategory(ctx, "users-groups"))
	first.State().Navigate(ctx, 1)
	first.State().RecordResult(ctx, "users-01", true, 10, 10)

	second := labexam.New(lab, store)
	snap, err := second.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.GradedCount())
	assert.Equal(t, 1, second.State().Index())
	res, ok := second.State().Result("users-01")
	require.True(t, ok)
	assert.True(t, res.Passed)
}

func TestDiscard(t *testing.T) {
	wb, store := newBench(t, testutils.NewFakeLab(testutils.SampleTasks()...))
	ctx := context.Background()
	require.NoError(t, wb.StartCategory(ctx, "storage"))

	require.NoError(t, wb.Discard(ctx))
	_, err := store.Load(ctx, labexam.DefaultSessionKey)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.False(t, wb.State().Active())
}

func TestGradeCurrent(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	wb, _ := newBench(t, lab)
	ctx := context.Background()

	_, err := wb.GradeCurrent(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNoSession)

	require.NoError(t, wb.StartCategory(ctx, "security"))
	res, err := wb.GradeCurrent(ctx, domain.TargetBoth)
	require.NoError(t, err)
	assert.Equal(t, grading.SinglePassed, res.Status)
	assert.Equal(t, "selinux-01", res.TaskID)

	_, err = wb.GradeTask(ctx, "users-01", "")
	assert.ErrorIs(t, err, domain.ErrUnknownTask)
}

func TestSubmit_ClosesRun(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	wb, store := newBench(t, lab)
	ctx := context.Background()
	require.NoError(t, wb.StartCategory(ctx, "storage"))

	out, err := wb.Submit(ctx, grading.NewToken())
	require.NoError(t, err)
	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.Equal(t, 20, out.Score)
	require.Len(t, lab.Submitted(), 1)

	_, err = store.Load(ctx, labexam.DefaultSessionKey)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSidebar_FlatWhenRandom(t *testing.T) {
	wb, _ := newBench(t, testutils.NewFakeLab(testutils.SampleTasks()...))
	ctx := context.Background()
	require.NoError(t, wb.StartPractice(ctx, []string{"users-01", "lvm-01", "lvm-02"}))

	view := wb.Sidebar("")
	assert.True(t, view.Grouped)
	assert.Len(t, view.Groups, 2)

	random, err := wb.State().ToggleSortMode(ctx)
	require.NoError(t, err)
	require.True(t, random)
	view = wb.Sidebar("lvm")
	assert.False(t, view.Grouped)
	assert.Len(t, view.Items, 2)
}

func TestMergeDiscovered(t *testing.T) {
	update := labexam.MergeDiscovered(
		domain.VMConfig{Node1: "servera", Node1IP: "10.0.0.1", Node2IP: "10.0.0.2", HasPassword: true},
		domain.DiscoveredIPs{Node2IP: "192.168.122.20", Method: "virsh"},
	)
	assert.Equal(t, domain.ConfigUpdate{
		Node1:   "servera",
		Node1IP: "10.0.0.1",
		Node2:   labexam.DefaultNode2Name,
		Node2IP: "192.168.122.20",
	}, update)
}

func TestDiscoverAndSave(t *testing.T) {
	lab := testutils.NewFakeLab()
	lab.Discovered = &domain.DiscoveredIPs{Node1IP: "192.168.122.10", Method: "virsh"}
	wb, _ := newBench(t, lab)
	ctx := context.Background()

	found, err := wb.DiscoverAndSave(ctx)
	require.NoError(t, err)
	assert.Equal(t, "virsh", found.Method)
	require.Len(t, lab.Saved, 1)
	assert.Equal(t, "192.168.122.10", lab.Saved[0].Node1IP)
	assert.Equal(t, "10.0.0.12", lab.Saved[0].Node2IP)
	assert.Empty(t, lab.Saved[0].RootPassword)

	lab.Discovered = &domain.DiscoveredIPs{Method: "none"}
	_, err = wb.DiscoverAndSave(ctx)
	assert.ErrorIs(t, err, labexam.ErrNothingDiscovered)
	assert.Len(t, lab.Saved, 1)
}

func TestSaveConfig_InvalidatesReadiness(t *testing.T) {
	lab := testutils.NewFakeLab()
	lab.Config = &domain.VMConfig{}
	wb, _ := newBench(t, lab)
	ctx := context.Background()

	assert.Equal(t, readiness.ReasonConfig, wb.Readiness(ctx).Reason)

	lab.Config = &domain.VMConfig{Node1IP: "a", Node2IP: "b", HasPassword: true}
	require.NoError(t, wb.SaveConfig(ctx, domain.ConfigUpdate{Node1IP: "a", Node2IP: "b", RootPassword: "redhat"}))
	assert.True(t, wb.Readiness(ctx).Ready)
}

type stepLog struct {
	mu    sync.Mutex
	steps map[labexam.Step][]labexam.StepStatus
}

func (l *stepLog) record(s labexam.Step, st labexam.StepStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.steps == nil {
		l.steps = map[labexam.Step][]labexam.StepStatus{}
	}
	l.steps[s] = append(l.steps[s], st)
}

func TestStartQuick(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	wb, _ := newBench(t, lab)
	log := &stepLog{}

	require.NoError(t, wb.StartQuick(context.Background(), log.record))
	assert.Equal(t, 5, wb.State().Len())
	for _, s := range []labexam.Step{labexam.StepTasks, labexam.StepConfig, labexam.StepNode1, labexam.StepNode2} {
		assert.Equal(t, []labexam.StepStatus{labexam.StepActive, labexam.StepDone}, log.steps[s], string(s))
	}
}

func TestStartQuick_NodeDown(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	lab.NodeErr = map[domain.Target]error{domain.TargetNode2: testutils.ErrTransport}
	wb, _ := newBench(t, lab)
	log := &stepLog{}

	err := wb.StartQuick(context.Background(), log.record)
	var notReady *labexam.NotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, readiness.ReasonConnection, notReady.Result.Reason)
	assert.Equal(t, []labexam.StepStatus{labexam.StepActive, labexam.StepDone}, log.steps[labexam.StepNode1])
	assert.Equal(t, []labexam.StepStatus{labexam.StepActive, labexam.StepFailed}, log.steps[labexam.StepNode2])
	assert.False(t, wb.State().Active())
}

func TestStartQuick_Unconfigured(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	lab.Config = &domain.VMConfig{Node1IP: "a", Node2IP: "b"}
	wb, _ := newBench(t, lab)

	err := wb.StartQuick(context.Background(), nil)
	var notReady *labexam.NotReadyError
	require.True(t, errors.As(err, &notReady))
	assert.Equal(t, readiness.ReasonConfig, notReady.Result.Reason)
	assert.Zero(t, lab.Calls("TestNode"))
}

func TestRunChangesRejectedWhileGrading(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	busy := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	lab.GradeFunc = func(ctx context.Context, id string, target domain.Target) (*domain.GradeResponse, error) {
		once.Do(func() { close(busy) })
		<-release
		return &domain.GradeResponse{Passed: true, Points: 10, MaxPoints: 10}, nil
	}
	wb, store := newBench(t, lab)
	ctx := context.Background()
	require.NoError(t, wb.StartCategory(ctx, "storage"))

	done := make(chan *grading.Outcome, 1)
	go func() {
		out, _ := wb.Submit(ctx, grading.NewToken())
		done <- out
	}()
	<-busy

	assert.ErrorIs(t, wb.StartPractice(ctx, []string{"users-01"}), domain.ErrGradingInProgress)
	assert.ErrorIs(t, wb.StartCategory(ctx, "users-groups"), domain.ErrGradingInProgress)
	assert.ErrorIs(t, wb.StartExam(ctx, 2), domain.ErrGradingInProgress)
	assert.ErrorIs(t, wb.StartQuick(ctx, nil), domain.ErrGradingInProgress)
	assert.ErrorIs(t, wb.Discard(ctx), domain.ErrGradingInProgress)
	_, err := wb.Resume(ctx)
	assert.ErrorIs(t, err, domain.ErrGradingInProgress)

	close(release)
	out := <-done
	require.NotNil(t, out)
	assert.Equal(t, grading.PhaseCompleted, out.Phase)
	assert.Equal(t, 20, out.Score)

	_, err = store.Load(ctx, labexam.DefaultSessionKey)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.NoError(t, wb.StartPractice(ctx, []string{"users-01"}), "free again once grading finished")
}
