package cli

import (
	"fmt"
	"sync"

	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/grading"
)

// progressHooks prints a line per grading phase, reboot stage and finished
// task. Reboot progress is only printed when the stage changes.
func (a *App) progressHooks() grading.Hooks {
	var mu sync.Mutex
	var lastStage string
	return grading.Hooks{
		OnPhase: func(p grading.Phase, msg string) {
			if a.Quiet {
				return
			}
			if p == grading.PhasePreflight {
				mu.Lock()
				lastStage = ""
				mu.Unlock()
			}
			switch p {
			case grading.PhaseCompleted:
				return
			case grading.PhaseAborted:
				printSystemMessage(a.Out, "%s", a.Palette.Fail(msg))
			case grading.PhaseCancelled:
				printSystemMessage(a.Out, "%s", a.Palette.Warn(msg))
			default:
				printSystemMessage(a.Out, "%s", msg)
			}
		},
		OnRebootProgress: func(pct float64, stage string) {
			if a.Quiet {
				return
			}
			mu.Lock()
			changed := stage != lastStage
			lastStage = stage
			mu.Unlock()
			if changed {
				fmt.Fprintf(a.Out, "    %s %3.0f%% %s\n", tui.ProgressBar(pct, 20), pct, a.Palette.Muted(stage))
			}
		},
		OnTaskStatus: func(id string, s grading.TaskStatus) {
			if a.Quiet {
				return
			}
			switch s {
			case grading.StatusPassed:
				fmt.Fprintf(a.Out, "    %s %s\n", a.Palette.OK("✓"), id)
			case grading.StatusFailed:
				fmt.Fprintf(a.Out, "    %s %s\n", a.Palette.Fail("✗"), id)
			case grading.StatusError:
				fmt.Fprintf(a.Out, "    %s %s %s\n", a.Palette.Warn("!"), id, a.Palette.Muted("(grading error)"))
			}
		},
	}
}
