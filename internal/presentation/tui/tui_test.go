package tui_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain() tui.Palette {
	return tui.NewPaletteWithProfile(&bytes.Buffer{}, termenv.Ascii)
}

func TestCountdown(t *testing.T) {
	assert.Equal(t, "03:00:00", tui.Countdown(3*time.Hour))
	assert.Equal(t, "00:01:05", tui.Countdown(65*time.Second+400*time.Millisecond))
	assert.Equal(t, "00:00:00", tui.Countdown(-time.Second))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[█████░░░░░]", tui.ProgressBar(50, 10))
	assert.Equal(t, "[██████████]", tui.ProgressBar(140, 10))
	assert.Equal(t, "[░░░░]", tui.ProgressBar(-3, 4))
	assert.Empty(t, tui.ProgressBar(50, 0))
}

func TestSidebarText(t *testing.T) {
	tasks := []domain.Task{
		{ID: "lvm-01", Category: "storage"},
		{ID: "users-01", Category: "users-groups"},
		{ID: "lvm-02", Category: "storage"},
	}
	collapsed := map[string]bool{"users-groups": true}
	view := projector.Sidebar(projector.Input{
		Tasks:     tasks,
		Results:   map[string]domain.TaskResult{"lvm-02": {TaskID: "lvm-02", Passed: true, Graded: true}},
		Index:     0,
		Grouped:   true,
		Collapsed: func(c string) bool { return collapsed[c] },
	})

	out := tui.SidebarText(plain(), view)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, []string{
		"▾ storage (2)",
		"  ▸ ·  1. lvm-01",
		"    ✓  3. lvm-02",
		"▸ users groups (1)",
	}, lines)
}

func TestSidebarText_Empty(t *testing.T) {
	out := tui.SidebarText(plain(), projector.View{})
	assert.Contains(t, out, "No tasks match")
}

func TestTaskMarkdown(t *testing.T) {
	task := domain.Task{ID: "selinux-01", Description: "Set SELinux to enforcing", Category: "security", Target: domain.TargetBoth}
	md := tui.TaskMarkdown(task, projector.Navigation(4, 1), &domain.TaskResult{Passed: false, Points: 3, MaxPoints: 10, Graded: true})

	assert.Contains(t, md, "# selinux-01")
	assert.Contains(t, md, "node1 & node2")
	assert.Contains(t, md, "Task 2 of 4")
	assert.Contains(t, md, "FAILED (3/10 pts)")
}

func TestRenderers(t *testing.T) {
	out, err := tui.PlainRenderer("# Title")
	require.NoError(t, err)
	assert.Equal(t, "# Title", out)

	out, err = tui.NewPlainStyleRenderer()("# PASSED\n\nScore 8/10")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSED")
	assert.Contains(t, out, "Score 8/10")
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := tui.NewPrompter(strings.NewReader("\nsecret\nY\nmaybe\n"), &out)

	v, err := p.Line("Node 1 name", "rhcsa1")
	require.NoError(t, err)
	assert.Equal(t, "rhcsa1", v)

	pw, err := p.Password("Root password")
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)

	ok, err := p.Confirm("Reboot node1?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm("Again?")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Contains(t, out.String(), "Node 1 name [rhcsa1]: ")
	assert.Contains(t, out.String(), "Reboot node1? (y/N): ")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|\\__,_|")
}
