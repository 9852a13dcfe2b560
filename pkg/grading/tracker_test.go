package grading_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/labexam/internal/testutils"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_FollowsRun(t *testing.T) {
	lab := testutils.NewFakeLab(testutils.SampleTasks()...)
	tracker := grading.NewTracker()

	var mu sync.Mutex
	var phases []grading.Phase
	unsubscribe := tracker.Subscribe(func(p grading.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	})
	defer unsubscribe()

	o := grading.New(lab, readiness.New(lab),
		grading.WithSettle(0), grading.WithTick(time.Millisecond), grading.WithHooks(tracker.Hooks()))
	st := session.NewState(nil, "k")
	ctx := context.Background()
	require.NoError(t, st.Start(ctx, testutils.SampleTasks()[:3], domain.ModePractice, false))

	out, err := o.Run(ctx, st, grading.NewToken())
	require.NoError(t, err)
	require.Equal(t, grading.PhaseCompleted, out.Phase)

	cur := tracker.Current()
	assert.Equal(t, grading.PhaseCompleted, cur.Phase)
	assert.Equal(t, 3, cur.Completed)
	assert.Equal(t, 3, cur.Total)
	assert.Equal(t, grading.StatusPassed, cur.TaskStatuses["users-01"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, grading.PhasePreflight, phases[0])
	assert.Equal(t, grading.PhaseCompleted, phases[len(phases)-1])
}

func TestTracker_ResetsOnNewRun(t *testing.T) {
	tracker := grading.NewTracker()
	h := tracker.Hooks()

	h.OnProgress(2, 2)
	h.OnTaskStatus("a", grading.StatusFailed)
	h.OnPhase(grading.PhasePreflight, "Checking VM readiness...")

	cur := tracker.Current()
	assert.Equal(t, grading.PhasePreflight, cur.Phase)
	assert.Zero(t, cur.Completed)
	assert.Empty(t, cur.TaskStatuses)
}

func TestTracker_CurrentIsACopy(t *testing.T) {
	tracker := grading.NewTracker()
	tracker.Hooks().OnTaskStatus("a", grading.StatusGrading)

	cur := tracker.Current()
	cur.TaskStatuses["a"] = grading.StatusPassed
	assert.Equal(t, grading.StatusGrading, tracker.Current().TaskStatuses["a"])
	assert.Equal(t, grading.PhaseIdle, tracker.Current().Phase)
}
