package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/projector"
)

// TaskMarkdown renders the task under the cursor with its navigation line
// and latest result.
func TaskMarkdown(task domain.Task, nav projector.Nav, res *domain.TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", task.ID)
	fmt.Fprintf(&b, "_%s_ · target **%s** · %s\n\n", domain.CategoryLabel(task.Category), task.EffectiveTarget().Label(), nav.Indicator)
	b.WriteString(task.Description)
	b.WriteString("\n")
	if res != nil && res.Graded {
		status := "FAILED"
		if res.Passed {
			status = "PASSED"
		}
		fmt.Fprintf(&b, "\n**Last result:** %s (%d/%d pts)\n", status, res.Points, res.MaxPoints)
	}
	return b.String()
}

func statusMark(s projector.ItemStatus) string {
	switch s {
	case projector.ItemPassed:
		return "✓"
	case projector.ItemFailed:
		return "✗"
	}
	return "·"
}

func itemLine(p Palette, it projector.Item) string {
	cursor := "  "
	if it.Active {
		cursor = "▸ "
	}
	mark := statusMark(it.Status)
	switch it.Status {
	case projector.ItemPassed:
		mark = p.OK(mark)
	case projector.ItemFailed:
		mark = p.Fail(mark)
	default:
		mark = p.Muted(mark)
	}
	line := fmt.Sprintf("%s%s %2d. %s", cursor, mark, it.Number, it.Task.ID)
	if it.Active {
		line = p.Bold(line)
	}
	return line
}

// SidebarText renders the projected sidebar as plain lines.
func SidebarText(p Palette, v projector.View) string {
	if v.Empty() {
		return p.Muted("No tasks match your search.") + "\n"
	}
	var b strings.Builder
	if !v.Grouped {
		for _, it := range v.Items {
			b.WriteString(itemLine(p, it))
			b.WriteString("\n")
		}
		return b.String()
	}
	for _, g := range v.Groups {
		arrow := "▾"
		if g.Collapsed {
			arrow = "▸"
		}
		fmt.Fprintf(&b, "%s %s (%d)\n", arrow, p.Bold(g.Label), len(g.Items))
		if g.Collapsed {
			continue
		}
		for _, it := range g.Items {
			b.WriteString("  ")
			b.WriteString(itemLine(p, it))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Countdown renders a remaining duration as HH:MM:SS.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// ProgressBar draws a fixed-width bar for a 0-100 percentage.
func ProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100 * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// StepMark is the icon of a startup step state.
func StepMark(p Palette, status string) string {
	switch status {
	case "done":
		return p.OK("✓")
	case "fail":
		return p.Fail("✗")
	case "active":
		return p.Info("…")
	}
	return "○"
}
