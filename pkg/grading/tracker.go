package grading

import "sync"

// Progress is a point-in-time view of a grading run.
type Progress struct {
	Phase        Phase                 `json:"phase"`
	Message      string                `json:"message"`
	RebootPct    float64               `json:"reboot_percent"`
	RebootStage  string                `json:"reboot_stage,omitempty"`
	Completed    int                   `json:"completed"`
	Total        int                   `json:"total"`
	TaskStatuses map[string]TaskStatus `json:"task_statuses,omitempty"`
}

// Tracker folds hook callbacks into a Progress value that can be polled or
// observed. Install Tracker.Hooks on the Orchestrator.
type Tracker struct {
	mu       sync.Mutex
	progress Progress

	subMu sync.Mutex
	subs  map[int]func(Progress)
	next  int
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		progress: Progress{Phase: PhaseIdle},
		subs:     make(map[int]func(Progress)),
	}
}

// Hooks returns the callbacks that feed the tracker.
func (t *Tracker) Hooks() Hooks {
	return Hooks{
		OnPhase: func(p Phase, msg string) {
			t.update(func(pr *Progress) {
				if p == PhasePreflight {
					*pr = Progress{}
				}
				pr.Phase = p
				pr.Message = msg
			})
		},
		OnRebootProgress: func(pct float64, stage string) {
			t.update(func(pr *Progress) {
				pr.RebootPct = pct
				pr.RebootStage = stage
			})
		},
		OnTaskStatus: func(id string, s TaskStatus) {
			t.update(func(pr *Progress) {
				if pr.TaskStatuses == nil {
					pr.TaskStatuses = make(map[string]TaskStatus)
				}
				pr.TaskStatuses[id] = s
			})
		},
		OnProgress: func(done, total int) {
			t.update(func(pr *Progress) {
				pr.Completed = done
				pr.Total = total
			})
		},
	}
}

func (t *Tracker) update(fn func(*Progress)) {
	t.mu.Lock()
	fn(&t.progress)
	snap := t.copyLocked()
	t.mu.Unlock()

	t.subMu.Lock()
	subs := make([]func(Progress), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (t *Tracker) copyLocked() Progress {
	p := t.progress
	if p.TaskStatuses != nil {
		p.TaskStatuses = make(map[string]TaskStatus, len(t.progress.TaskStatuses))
		for k, v := range t.progress.TaskStatuses {
			p.TaskStatuses[k] = v
		}
	}
	return p
}

// Current returns a copy of the latest progress.
func (t *Tracker) Current() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// Subscribe registers fn for every update and returns a function that
// removes it. fn runs on the grading goroutines and must not block.
func (t *Tracker) Subscribe(fn func(Progress)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.next
	t.next++
	t.subs[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subs, id)
	}
}
