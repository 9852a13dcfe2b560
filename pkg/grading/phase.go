package grading

// Phase is a state of the grading run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreflight Phase = "preflight"
	PhaseRebooting Phase = "rebooting"
	PhaseGrading   Phase = "grading"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseAborted   Phase = "aborted"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseCancelled, PhaseAborted:
		return true
	}
	return false
}

// TaskStatus is the visible grading status of one task.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusGrading TaskStatus = "grading"
	StatusPassed  TaskStatus = "passed"
	StatusFailed  TaskStatus = "failed"
	StatusError   TaskStatus = "error"
)
