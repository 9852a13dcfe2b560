package grading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
)

const (
	// DefaultSettle is the minimum time spent in the reboot phase.
	DefaultSettle = 15 * time.Second
	// DefaultTick is the cosmetic reboot progress interval.
	DefaultTick = 100 * time.Millisecond
	// PassRatio is the share of total points needed to pass.
	PassRatio = 0.7
)

// Backend is what a grading run needs from the lab API.
type Backend interface {
	ports.Grader
	ports.Rebooter
	ports.ResultsStore
}

// Gate is the readiness precondition.
type Gate interface {
	Check(ctx context.Context) readiness.Result
}

// Orchestrator executes grading runs. One Orchestrator allows a single run
// at a time.
type Orchestrator struct {
	backend     Backend
	gate        Gate
	logger      *slog.Logger
	hooks       Hooks
	settle      time.Duration
	tick        time.Duration
	concurrency int
	now         func() time.Time

	running atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithHooks installs progress observers.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// WithSettle sets the minimum reboot wait.
func WithSettle(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.settle = d
	}
}

// WithTick sets the reboot progress interval.
func WithTick(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.tick = d
	}
}

// WithConcurrency bounds parallel grade requests. Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

// WithClock replaces time.Now for duration accounting.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator.
func New(backend Backend, gate Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		gate:    gate,
		logger:  logging.NewNop(),
		settle:  DefaultSettle,
		tick:    DefaultTick,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Running reports whether a run is executing.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Outcome is the terminal result of a grading run.
type Outcome struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	// Reason is set when preflight aborted the run.
	Reason readiness.Reason `json:"reason,omitempty"`
	// Nodes holds the reboot outcomes once the reboot phase ran.
	Nodes []NodeOutcome `json:"nodes,omitempty"`

	Score      int                             `json:"score"`
	Total      int                             `json:"total"`
	Passed     bool                            `json:"passed"`
	Checks     []domain.CheckResult            `json:"checks,omitempty"`
	Categories map[string]domain.CategoryScore `json:"categories,omitempty"`
	Graded     int                             `json:"graded"`
	TaskCount  int                             `json:"task_count"`

	Mode            domain.Mode `json:"mode,omitempty"`
	DurationSeconds *int64      `json:"duration_seconds,omitempty"`
	// Submitted is false when the results store rejected the submission.
	Submitted bool `json:"submitted"`
}

// Percentage returns score/total rounded to a whole percent.
func (o *Outcome) Percentage() int {
	if o.Total == 0 {
		return 0
	}
	return int(float64(o.Score)/float64(o.Total)*100 + 0.5)
}

// Passes applies the pass threshold. A run with no points to earn fails.
func Passes(score, total int) bool {
	if total <= 0 {
		return false
	}
	return float64(score) >= PassRatio*float64(total)
}

// Run grades every task of the session. It returns an error only when the
// run cannot start; every network failure is folded into the Outcome.
// A nil token is treated as never cancelled.
func (o *Orchestrator) Run(ctx context.Context, st *session.State, token *Token) (*Outcome, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.ErrGradingInProgress
	}
	defer o.running.Store(false)

	if token == nil {
		token = NewToken()
	}
	gen := st.Generation()
	tasks := st.Tasks()
	if len(tasks) == 0 {
		return nil, domain.ErrNoSession
	}

	out := &Outcome{Mode: st.Mode(), TaskCount: len(tasks)}
	if start := st.ExamStartTime(); !start.IsZero() {
		d := int64(o.now().Sub(start) / time.Second)
		out.DurationSeconds = &d
	}
	log := o.logger.With("mode", string(out.Mode), "tasks", len(tasks))

	o.hooks.phase(PhasePreflight, "Verifying VM connectivity...")
	res := o.gate.Check(ctx)
	if token.Cancelled() {
		return o.finish(out, PhaseCancelled, "Grading cancelled."), nil
	}
	if !res.Ready {
		out.Reason = res.Reason
		log.Warn("grading preflight failed", "reason", string(res.Reason))
		return o.finish(out, PhaseAborted, "Cannot proceed with grading: "+res.Message()), nil
	}

	o.hooks.phase(PhaseRebooting, "Rebooting VMs to ensure configs survive...")
	out.Nodes = o.rebootForGrading(ctx, token)
	if token.Cancelled() || ctx.Err() != nil {
		return o.finish(out, PhaseCancelled, "Grading cancelled during reboot."), nil
	}
	if failed := failureMessage(out.Nodes); failed != "" {
		log.Warn("reboot failed, grading aborted", "detail", failed)
		return o.finish(out, PhaseAborted, "Reboot issues: "+failed), nil
	}

	o.hooks.phase(PhaseGrading, fmt.Sprintf("Grading %d tasks in parallel...", len(tasks)))
	o.gradeAll(ctx, st, gen, tasks, out)
	if token.Cancelled() {
		log.Info("grading cancelled after requests completed", "graded", out.Graded)
		return o.finish(out, PhaseCancelled, fmt.Sprintf("Graded %d of %d tasks.", out.Graded, len(tasks))), nil
	}

	out.Passed = Passes(out.Score, out.Total)
	out.Categories = categoryBreakdown(out.Checks)

	sub := domain.ResultSubmission{
		Score:           out.Score,
		Total:           out.Total,
		Passed:          out.Passed,
		Checks:          out.Checks,
		Categories:      out.Categories,
		Mode:            out.Mode,
		DurationSeconds: out.DurationSeconds,
	}
	if err := o.backend.SubmitResults(ctx, sub); err != nil {
		log.Error("failed to save results", "error", err)
	} else {
		out.Submitted = true
	}
	if done, err := st.CompleteIn(ctx, gen); err != nil {
		log.Warn("failed to clear completed session", "error", err)
	} else if !done {
		log.Warn("run replaced while grading, new run kept")
	}

	log.Info("grading completed", "score", out.Score, "total", out.Total, "passed", out.Passed)
	label := "FAILED"
	if out.Passed {
		label = "PASSED"
	}
	return o.finish(out, PhaseCompleted, fmt.Sprintf("%s: %d/%d points", label, out.Score, out.Total)), nil
}

func (o *Orchestrator) finish(out *Outcome, p Phase, msg string) *Outcome {
	out.Phase = p
	out.Message = msg
	o.hooks.phase(p, msg)
	return out
}

// gradeAll fires one grade request per task and folds each response into
// out and the session as it arrives. It always completes.
// Results are recorded only while the run identified by gen is current.
func (o *Orchestrator) gradeAll(ctx context.Context, st *session.State, gen uint64, tasks []domain.Task, out *Outcome) {
	for _, t := range tasks {
		o.hooks.taskStatus(t.ID, StatusPending)
	}
	for _, t := range tasks {
		o.hooks.taskStatus(t.ID, StatusGrading)
	}

	checks := make([]domain.CheckResult, len(tasks))
	var mu sync.Mutex
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for i, task := range tasks {
		g.Go(func() error {
			check := domain.CheckResult{
				Task:     task.ID,
				Check:    task.Description,
				Category: task.Category,
			}
			status := StatusError
			verdict := false

			resp, err := o.backend.Grade(ctx, task.ID, "")
			switch {
			case err != nil:
				o.logger.Warn("grade request failed", "task", task.ID, "error", err)
				st.RecordResultIn(ctx, gen, task.ID, false, 0, 0)
			case resp.Failed():
				o.logger.Warn("grader failed", "task", task.ID, "detail", resp.ErrorText())
				st.RecordResultIn(ctx, gen, task.ID, false, 0, resp.MaxPoints)
			default:
				verdict = true
				check.Passed = resp.Passed
				check.Points = resp.MaxPoints
				status = StatusFailed
				if resp.Passed {
					status = StatusPassed
				}
				st.RecordResultIn(ctx, gen, task.ID, resp.Passed, resp.Points, resp.MaxPoints)
			}

			mu.Lock()
			defer mu.Unlock()
			if verdict {
				out.Score += resp.Points
				out.Total += resp.MaxPoints
			}
			checks[i] = check
			out.Graded++
			o.hooks.taskStatus(task.ID, status)
			o.hooks.progress(out.Graded, len(tasks))
			return nil
		})
	}
	_ = g.Wait()
	out.Checks = checks
}

func categoryBreakdown(checks []domain.CheckResult) map[string]domain.CategoryScore {
	cats := make(map[string]domain.CategoryScore)
	for _, c := range checks {
		cs := cats[c.Category]
		if c.Passed {
			cs.Earned += c.Points
		}
		cs.Possible += c.Points
		cats[c.Category] = cs
	}
	return cats
}
