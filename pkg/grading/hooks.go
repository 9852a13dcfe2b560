package grading

// Hooks lets a front-end follow a grading run. Every field is optional.
// Hooks are called synchronously, some while internal locks are held, so
// they must return quickly and must not call back into the Orchestrator.
type Hooks struct {
	// OnPhase fires on every phase change with a human-readable status.
	OnPhase func(phase Phase, message string)

	// OnRebootProgress reports the cosmetic reboot progress in percent (0-95)
	// with a stage description.
	OnRebootProgress func(percent float64, stage string)

	// OnTaskStatus fires when a task moves between grading statuses.
	OnTaskStatus func(taskID string, status TaskStatus)

	// OnProgress reports completed/total after each task finishes.
	// completed is strictly increasing within a run.
	OnProgress func(completed, total int)
}

func (h Hooks) phase(p Phase, msg string) {
	if h.OnPhase != nil {
		h.OnPhase(p, msg)
	}
}

func (h Hooks) rebootProgress(pct float64, stage string) {
	if h.OnRebootProgress != nil {
		h.OnRebootProgress(pct, stage)
	}
}

func (h Hooks) taskStatus(id string, s TaskStatus) {
	if h.OnTaskStatus != nil {
		h.OnTaskStatus(id, s)
	}
}

func (h Hooks) progress(done, total int) {
	if h.OnProgress != nil {
		h.OnProgress(done, total)
	}
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnPhase: func(p Phase, msg string) {
			h.phase(p, msg)
			other.phase(p, msg)
		},
		OnRebootProgress: func(pct float64, stage string) {
			h.rebootProgress(pct, stage)
			other.rebootProgress(pct, stage)
		},
		OnTaskStatus: func(id string, s TaskStatus) {
			h.taskStatus(id, s)
			other.taskStatus(id, s)
		},
		OnProgress: func(done, total int) {
			h.progress(done, total)
			other.progress(done, total)
		},
	}
}
