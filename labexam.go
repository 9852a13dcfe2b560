package labexam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/catalog"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/ports"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
)

const (
	// DefaultSessionKey is the store key of the single persisted run.
	DefaultSessionKey = "examState"
	// DefaultExamTasks is the size of a generated exam.
	DefaultExamTasks = 15
	// DefaultExamDuration is the time limit of a timed run.
	DefaultExamDuration = 3 * time.Hour
)

// NotReadyError is returned when an operation is refused by the readiness gate.
type NotReadyError struct {
	Result readiness.Result
}

func (e *NotReadyError) Error() string {
	return e.Result.Message()
}

// Workbench is the high-level entry point of the library. It wires the
// catalog, readiness gate, session state and grading orchestrator around a
// lab backend and a session store, and is shared by every front-end.
type Workbench struct {
	api      ports.LabAPI
	catalog  *catalog.Cache
	checker  *readiness.Checker
	sessions *session.Manager
	state    *session.State
	grader   *grading.Orchestrator
	collapse *projector.Collapse

	logger       *slog.Logger
	key          string
	examTasks    int
	examDuration time.Duration
	now          func() time.Time

	locker      ports.DistributedLocker
	gradingOpts []grading.Option
	stateOpts   []session.StateOption
}

// Option defines a functional option for configuring the Workbench.
type Option func(*Workbench)

// WithLogger sets a structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workbench) {
		w.logger = logger
	}
}

// WithSessionKey changes the key the run is persisted under.
func WithSessionKey(key string) Option {
	return func(w *Workbench) {
		w.key = key
	}
}

// WithLocker coordinates session writes across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(w *Workbench) {
		w.locker = locker
	}
}

// WithGradingOptions forwards options to the grading orchestrator.
func WithGradingOptions(opts ...grading.Option) Option {
	return func(w *Workbench) {
		w.gradingOpts = append(w.gradingOpts, opts...)
	}
}

// WithStateOptions forwards options to the session state.
func WithStateOptions(opts ...session.StateOption) Option {
	return func(w *Workbench) {
		w.stateOpts = append(w.stateOpts, opts...)
	}
}

// WithExam sets the generated exam size and its time limit.
func WithExam(tasks int, duration time.Duration) Option {
	return func(w *Workbench) {
		if tasks > 0 {
			w.examTasks = tasks
		}
		if duration > 0 {
			w.examDuration = duration
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workbench) {
		w.now = now
	}
}

// New builds a Workbench on top of a lab backend and a session store.
func New(api ports.LabAPI, store ports.SessionStore, opts ...Option) *Workbench {
	w := &Workbench{
		api:          api,
		logger:       logging.NewNop(),
		key:          DefaultSessionKey,
		examTasks:    DefaultExamTasks,
		examDuration: DefaultExamDuration,
		now:          time.Now,
		collapse:     projector.NewCollapse(),
	}
	for _, opt := range opts {
		opt(w)
	}

	mgrOpts := []session.Option{session.WithLogger(w.logger)}
	if w.locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(w.locker))
	}
	w.sessions = session.NewManager(store, mgrOpts...)

	stateOpts := append([]session.StateOption{
		session.WithStateLogger(w.logger),
		session.WithClock(w.now),
	}, w.stateOpts...)
	w.state = session.NewState(w.sessions, w.key, stateOpts...)

	w.catalog = catalog.New(api, catalog.WithLogger(w.logger))
	w.checker = readiness.New(api, readiness.WithLogger(w.logger))

	gradingOpts := append([]grading.Option{
		grading.WithLogger(w.logger),
		grading.WithClock(w.now),
	}, w.gradingOpts...)
	w.grader = grading.New(api, w.checker, gradingOpts...)
	return w
}

// API returns the lab backend.
func (w *Workbench) API() ports.LabAPI { return w.api }

// Catalog returns the task catalog cache.
func (w *Workbench) Catalog() *catalog.Cache { return w.catalog }

// Checker returns the readiness gate.
func (w *Workbench) Checker() *readiness.Checker { return w.checker }

// Sessions returns the session manager.
func (w *Workbench) Sessions() *session.Manager { return w.sessions }

// State returns the current run.
func (w *Workbench) State() *session.State { return w.state }

// Grader returns the grading orchestrator.
func (w *Workbench) Grader() *grading.Orchestrator { return w.grader }

// Collapse returns the sidebar collapse set of the current run.
func (w *Workbench) Collapse() *projector.Collapse { return w.collapse }

// SessionKey returns the key the run is persisted under.
func (w *Workbench) SessionKey() string { return w.key }

// ExamTasks returns the configured exam size.
func (w *Workbench) ExamTasks() int { return w.examTasks }

// Readiness runs the readiness gate.
func (w *Workbench) Readiness(ctx context.Context) readiness.Result {
	return w.checker.Check(ctx)
}

// Saved returns the persisted run if one can be resumed, or nil.
func (w *Workbench) Saved(ctx context.Context) (*domain.Snapshot, error) {
	return w.sessions.Resumable(ctx, w.key)
}

// Resume restores the persisted run into the current state. It returns
// domain.ErrSessionNotFound when there is nothing to resume.
func (w *Workbench) Resume(ctx context.Context) (*domain.Snapshot, error) {
	if err := w.idle(); err != nil {
		return nil, err
	}
	snap, err := w.Saved(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, domain.ErrSessionNotFound
	}
	if err := w.state.Restore(ctx, snap); err != nil {
		return nil, err
	}
	w.collapse.Reset(projector.Categories(w.state.Tasks()))
	w.logger.Info("session resumed", "key", w.key, "mode", string(snap.CurrentMode), "tasks", len(snap.SelectedTasks))
	return snap, nil
}

// Discard drops the persisted run and clears the current state.
func (w *Workbench) Discard(ctx context.Context) error {
	if err := w.idle(); err != nil {
		return err
	}
	return w.state.Abandon(ctx)
}

// idle rejects replacing or dropping the run while it is being graded.
func (w *Workbench) idle() error {
	if w.grader.Running() {
		return domain.ErrGradingInProgress
	}
	return nil
}

func (w *Workbench) start(ctx context.Context, tasks []domain.Task, mode domain.Mode, timed bool) error {
	if err := w.idle(); err != nil {
		return err
	}
	if err := w.state.Start(ctx, tasks, mode, timed); err != nil {
		return err
	}
	w.collapse.Reset(projector.Categories(tasks))
	w.logger.Info("run started", "mode", string(mode), "tasks", len(tasks), "timed", timed)
	return nil
}

// StartPractice begins an untimed run over the given catalog ids, kept in
// catalog order.
func (w *Workbench) StartPractice(ctx context.Context, ids []string) error {
	if err := w.idle(); err != nil {
		return err
	}
	tasks, err := w.catalog.Select(ctx, ids)
	if err != nil {
		return err
	}
	return w.start(ctx, tasks, domain.ModePractice, false)
}

// StartCategory begins an untimed run over one category.
func (w *Workbench) StartCategory(ctx context.Context, category string) error {
	if err := w.idle(); err != nil {
		return err
	}
	tasks, err := w.catalog.ByCategory(ctx, category)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("category %q: %w", category, domain.ErrNoTasks)
	}
	return w.start(ctx, tasks, domain.ModePractice, false)
}

// StartExam checks readiness, draws count random tasks (the configured size
// when count is zero or less) and begins a timed exam.
func (w *Workbench) StartExam(ctx context.Context, count int) error {
	if err := w.idle(); err != nil {
		return err
	}
	if ready := w.checker.Check(ctx); !ready.Ready {
		return &NotReadyError{Result: ready}
	}
	if count <= 0 {
		count = w.examTasks
	}
	tasks, err := w.catalog.Random(ctx, count)
	if err != nil {
		return err
	}
	return w.start(ctx, tasks, domain.ModeExam, true)
}

// GradeCurrent grades the task under the cursor. An empty target uses the
// task default.
func (w *Workbench) GradeCurrent(ctx context.Context, target domain.Target) (grading.SingleResult, error) {
	task, ok := w.state.Current()
	if !ok {
		return grading.SingleResult{}, domain.ErrNoSession
	}
	return w.grader.GradeOne(ctx, w.state, task.ID, target), nil
}

// GradeTask grades a task of the current run by id.
func (w *Workbench) GradeTask(ctx context.Context, taskID string, target domain.Target) (grading.SingleResult, error) {
	if !w.state.Active() {
		return grading.SingleResult{}, domain.ErrNoSession
	}
	for _, t := range w.state.Tasks() {
		if t.ID == taskID {
			return w.grader.GradeOne(ctx, w.state, taskID, target), nil
		}
	}
	return grading.SingleResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownTask, taskID)
}

// Submit runs the full grading flow on the current run.
func (w *Workbench) Submit(ctx context.Context, token *grading.Token) (*grading.Outcome, error) {
	return w.grader.Run(ctx, w.state, token)
}

// Reboot restarts the chosen nodes without grading.
func (w *Workbench) Reboot(ctx context.Context, target domain.Target) []grading.NodeOutcome {
	return w.grader.Reboot(ctx, target)
}

// Deadline returns when a timed run expires.
func (w *Workbench) Deadline() (time.Time, bool) {
	start := w.state.ExamStartTime()
	if start.IsZero() || w.state.Mode() != domain.ModeExam {
		return time.Time{}, false
	}
	return start.Add(w.examDuration), true
}

// Remaining returns the time left in a timed run, never negative.
func (w *Workbench) Remaining() (time.Duration, bool) {
	deadline, ok := w.Deadline()
	if !ok {
		return 0, false
	}
	return max(deadline.Sub(w.now()), 0), true
}

// Sidebar projects the current run. Runs in random order are shown flat.
func (w *Workbench) Sidebar(search string) projector.View {
	return projector.Sidebar(projector.Input{
		Tasks:     w.state.Tasks(),
		Results:   w.state.Results(),
		Index:     w.state.Index(),
		Search:    search,
		Grouped:   !w.state.RandomSort(),
		Collapsed: w.collapse.Collapsed,
	})
}

// SaveConfig stores the lab configuration and drops the cached copy.
func (w *Workbench) SaveConfig(ctx context.Context, update domain.ConfigUpdate) error {
	if err := w.api.SaveConfig(ctx, update); err != nil {
		return err
	}
	w.checker.Invalidate()
	return nil
}

// ErrNothingDiscovered is returned when discovery found no address.
var ErrNothingDiscovered = errors.New("no VM addresses discovered")

// Default node names used when the backend has none stored.
const (
	DefaultNode1Name = "rhcsa1"
	DefaultNode2Name = "rhcsa2"
)

// DiscoverAndSave asks the backend for the node addresses and merges the
// ones it found into the stored configuration. The stored password is
// never overwritten.
func (w *Workbench) DiscoverAndSave(ctx context.Context) (*domain.DiscoveredIPs, error) {
	found, err := w.api.DiscoverIPs(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover ips: %w", err)
	}
	if found.Node1IP == "" && found.Node2IP == "" {
		return found, ErrNothingDiscovered
	}

	current, err := w.checker.Config(ctx)
	if err != nil {
		current = &domain.VMConfig{}
	}
	update := MergeDiscovered(*current, *found)
	if err := w.SaveConfig(ctx, update); err != nil {
		return found, fmt.Errorf("save discovered ips: %w", err)
	}
	return found, nil
}

// MergeDiscovered overlays discovered addresses on cfg. Node names default
// to rhcsa1/rhcsa2 and the password is left empty so the backend keeps it.
func MergeDiscovered(cfg domain.VMConfig, found domain.DiscoveredIPs) domain.ConfigUpdate {
	update := domain.ConfigUpdate{
		Node1:   cfg.Node1,
		Node1IP: cfg.Node1IP,
		Node2:   cfg.Node2,
		Node2IP: cfg.Node2IP,
	}
	if update.Node1 == "" {
		update.Node1 = DefaultNode1Name
	}
	if update.Node2 == "" {
		update.Node2 = DefaultNode2Name
	}
	if found.Node1IP != "" {
		update.Node1IP = found.Node1IP
	}
	if found.Node2IP != "" {
		update.Node2IP = found.Node2IP
	}
	return update
}
