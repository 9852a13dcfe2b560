package cli_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/pkg/domain"
)

func TestShell_RequiresSession(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.app.Shell(context.Background()), domain.ErrNoSession)
}

func TestShell_Navigation(t *testing.T) {
	input := strings.NewReader(strings.Join([]string{
		"next",
		"next",
		"next",
		"prev",
		"goto 1",
		"goto lvm-02",
		"goto nope",
		"bogus",
		"quit",
	}, "\n") + "\n")
	f := newFixture(t, input)
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, nil, "storage"))

	require.NoError(t, f.app.Shell(ctx))
	out := f.out.String()
	assert.Contains(t, out, "# lvm-01")
	assert.Contains(t, out, "# lvm-02")
	assert.Contains(t, out, "already at the last task")
	assert.Contains(t, out, `no task "nope" in this run`)
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "Progress saved.")

	st := f.app.Bench.State()
	assert.True(t, st.Active())
	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, "lvm-02", cur.ID)
}

func TestShell_GradeAndList(t *testing.T) {
	input := strings.NewReader("grade\ngrade node9\nlist\n")
	f := newFixture(t, input)
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, []string{"users-01", "lvm-01"}, ""))

	require.NoError(t, f.app.Shell(ctx))
	out := f.out.String()
	assert.Contains(t, out, "✓ PASSED ALL PASSED (10/10 pts)")
	assert.Contains(t, out, `unknown target "node9"`)
	assert.Contains(t, out, "1/2 graded")

	res, ok := f.app.Bench.State().Result("users-01")
	require.True(t, ok)
	assert.True(t, res.Passed)
}

func TestShell_GotoListsTasks(t *testing.T) {
	f := newFixture(t, strings.NewReader("goto\n"))
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, []string{"users-01", "lvm-01"}, ""))

	require.NoError(t, f.app.Shell(ctx))
	assert.Contains(t, f.out.String(), "  2. lvm-01")
}

func TestShell_SubmitEndsRun(t *testing.T) {
	f := newFixture(t, strings.NewReader("submit\nnext\n"))
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, []string{"users-01", "lvm-01"}, ""))

	require.NoError(t, f.app.Shell(ctx))
	out := f.out.String()
	assert.Contains(t, out, "2 of 2 tasks not graded yet")
	assert.Contains(t, out, "# PASSED")
	assert.NotContains(t, out, "already at the last task")
	assert.Len(t, f.lab.Submitted(), 1)
	assert.False(t, f.app.Bench.State().Active())
}

func TestShell_SanitizesInput(t *testing.T) {
	f := newFixture(t, strings.NewReader("\x00ne\x1bxt\x07\n"))
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, []string{"users-01", "lvm-01"}, ""))

	require.NoError(t, f.app.Shell(ctx))
	assert.Equal(t, 1, f.app.Bench.State().Index())
}

func TestShell_SortAndCollapse(t *testing.T) {
	f := newFixture(t, strings.NewReader("collapse storage\nsort\nsort\n"))
	ctx := context.Background()
	require.NoError(t, f.app.StartPractice(ctx, nil, "storage"))

	require.NoError(t, f.app.Shell(ctx))
	out := f.out.String()
	assert.Contains(t, out, "▸ storage (2)")
	assert.Contains(t, out, "Tasks shuffled.")
	assert.Contains(t, out, "Tasks grouped by category.")
	assert.False(t, f.app.Bench.State().RandomSort())
}

func TestShell_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	f := newFixture(t, pr)
	require.NoError(t, f.app.StartPractice(context.Background(), []string{"users-01"}, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.app.Shell(ctx))
	assert.Contains(t, f.out.String(), "Interrupted. Progress saved.")
	assert.True(t, f.app.Bench.State().Active())
}

func TestShell_ExamExpiresAndSubmits(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	c := &clock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	f := newFixture(t, pr, cli.WithAppClock(c.Now))
	ctx := context.Background()

	require.NoError(t, f.app.StartExam(ctx, 2))
	c.Advance(4 * time.Hour)

	require.NoError(t, f.app.Shell(ctx))
	out := f.out.String()
	assert.Contains(t, out, "Time is up!")
	require.Len(t, f.lab.Submitted(), 1)
	sub := f.lab.Submitted()[0]
	assert.Equal(t, domain.ModeExam, sub.Mode)
	require.NotNil(t, sub.DurationSeconds)
	assert.Equal(t, int64(4*3600), *sub.DurationSeconds)
}
