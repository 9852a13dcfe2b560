package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/catalog"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/report"
	"github.com/aretw0/labexam/pkg/session"
)

// ErrRunAborted is returned when a grading run stops before scoring.
var ErrRunAborted = errors.New("grading aborted")

// ErrNotConfirmed is returned when the user declines a destructive action.
var ErrNotConfirmed = errors.New("not confirmed")

// ParseTarget accepts node1, node2, both or the empty string.
func ParseTarget(s string) (domain.Target, error) {
	t := domain.Target(strings.ToLower(strings.TrimSpace(s)))
	if t == "" || t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown target %q: use node1, node2 or both", s)
}

func (a *App) markdown(md string) {
	out, err := a.Render(md)
	if err != nil {
		a.Logger.Debug("markdown render failed", "err", err)
		out = md
	}
	fmt.Fprint(a.Out, out)
}

// Tasks prints the catalog filtered by q.
func (a *App) Tasks(ctx context.Context, q catalog.Query) error {
	all, err := a.Bench.Catalog().All(ctx)
	if err != nil {
		return err
	}
	tasks := catalog.Filter(all, q)
	if len(tasks) == 0 {
		fmt.Fprintln(a.Out, a.Palette.Muted("No tasks match."))
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(a.Out, "%-14s %-22s %s\n", t.ID, a.Palette.Muted(domain.CategoryLabel(t.Category)), t.Description)
	}
	fmt.Fprintf(a.Out, "\n%d of %d tasks\n", len(tasks), len(all))
	return nil
}

// Categories prints each category with its task count.
func (a *App) Categories(ctx context.Context) error {
	cats, err := a.Bench.Catalog().Categories(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		fmt.Fprintf(a.Out, "%-24s %3d  %s\n", c.Name, c.Count, a.Palette.Muted(c.Label()))
	}
	return nil
}

// ConfigShow prints the lab configuration stored by the backend followed by
// the local settings.
func (a *App) ConfigShow(ctx context.Context) error {
	cfg, err := a.Bench.Checker().Config(ctx)
	if err != nil {
		return err
	}
	password := a.Palette.Fail("not set")
	if cfg.HasPassword {
		password = a.Palette.OK("set")
	}
	fmt.Fprintln(a.Out, a.Palette.Bold("Lab"))
	fmt.Fprintf(a.Out, "  node1     %s %s\n", orDash(cfg.Node1), orDash(cfg.Node1IP))
	fmt.Fprintf(a.Out, "  node2     %s %s\n", orDash(cfg.Node2), orDash(cfg.Node2IP))
	fmt.Fprintf(a.Out, "  password  %s\n\n", password)

	local, err := a.Settings.Redacted().YAML()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, a.Palette.Bold("Local settings"))
	fmt.Fprint(a.Out, local)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ConfigSet asks for the node names, addresses and root password and saves
// them. Current values are offered as defaults; an empty password keeps the
// stored one.
func (a *App) ConfigSet(ctx context.Context, p *tui.Prompter) error {
	cfg, err := a.Bench.Checker().Config(ctx)
	if err != nil {
		a.Logger.Debug("no stored config", "err", err)
		cfg = &domain.VMConfig{}
	}
	update := labexam.MergeDiscovered(*cfg, domain.DiscoveredIPs{})
	fields := []struct {
		prompt string
		value  *string
	}{
		{"Node 1 name", &update.Node1},
		{"Node 1 IP", &update.Node1IP},
		{"Node 2 name", &update.Node2},
		{"Node 2 IP", &update.Node2IP},
	}
	for _, f := range fields {
		v, err := p.Line(f.prompt, *f.value)
		if err != nil {
			return err
		}
		*f.value = v
	}
	prompt := "Root password"
	if cfg.HasPassword {
		prompt += " (empty keeps current)"
	}
	if update.RootPassword, err = p.Password(prompt); err != nil {
		return err
	}
	if err := a.Bench.SaveConfig(ctx, update); err != nil {
		return err
	}
	printSystemMessage(a.Out, "%s", a.Palette.OK("Configuration saved."))
	return nil
}

// ConfigTest probes both nodes.
func (a *App) ConfigTest(ctx context.Context) error {
	status, err := a.Bench.API().TestConnection(ctx)
	if err != nil {
		return err
	}
	for _, n := range []struct {
		name string
		up   bool
	}{{"node1", status.Node1}, {"node2", status.Node2}} {
		mark := a.Palette.Fail("✗ unreachable")
		if n.up {
			mark = a.Palette.OK("✓ online")
		}
		fmt.Fprintf(a.Out, "  %s  %s\n", n.name, mark)
	}
	if !status.Node1 || !status.Node2 {
		return &labexam.NotReadyError{Result: readiness.Result{Reason: readiness.ReasonConnection}}
	}
	return nil
}

// ConfigDiscover asks the backend to find the node addresses and stores them.
func (a *App) ConfigDiscover(ctx context.Context) error {
	found, err := a.Bench.DiscoverAndSave(ctx)
	if errors.Is(err, labexam.ErrNothingDiscovered) {
		printSystemMessage(a.Out, "%s", a.Palette.Warn("No VM addresses found. Enter them with 'config set'."))
		return nil
	}
	if err != nil {
		return err
	}
	printSystemMessage(a.Out, "Discovered via %s: node1=%s node2=%s", found.Method, orDash(found.Node1IP), orDash(found.Node2IP))
	return nil
}

// Stats renders the historical statistics.
func (a *App) Stats(ctx context.Context) error {
	st, err := a.Bench.API().Stats(ctx)
	if err != nil {
		return err
	}
	a.markdown(report.StatsView(st).Markdown())
	return nil
}

// ClearResults deletes the result history after confirmation.
func (a *App) ClearResults(ctx context.Context, p *tui.Prompter, yes bool) error {
	if !yes {
		ok, err := p.Confirm("Delete all saved results?")
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotConfirmed
		}
	}
	res, err := a.Bench.API().ClearResults(ctx)
	if err != nil {
		return err
	}
	printSystemMessage(a.Out, "Deleted %d results.", res.Deleted)
	return nil
}

// Reboot restarts the target nodes after confirmation and waits for them.
func (a *App) Reboot(ctx context.Context, target domain.Target, p *tui.Prompter, yes bool) error {
	if !yes {
		ok, err := p.Confirm(fmt.Sprintf("Reboot %s?", target.Label()))
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotConfirmed
		}
	}
	printSystemMessage(a.Out, "Rebooting %s...", target.Label())
	nodes := a.Bench.Reboot(ctx, target)
	for _, n := range nodes {
		mark := a.Palette.OK("✓")
		if !n.OK {
			mark = a.Palette.Fail("✗")
		}
		fmt.Fprintf(a.Out, "  %s %s\n", mark, n.Label())
	}
	if !grading.AllOK(nodes) {
		return fmt.Errorf("reboot of %s failed", target.Label())
	}
	return nil
}

// SessionShow describes the saved run, if any.
func (a *App) SessionShow(ctx context.Context) error {
	snap, err := a.Bench.Saved(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Fprintln(a.Out, a.Palette.Muted("No saved session."))
		return nil
	}
	fmt.Fprintln(a.Out, session.Describe(snap, a.now()))
	for i, t := range snap.SelectedTasks {
		cursor := "  "
		if i == snap.CurrentTaskIndex {
			cursor = "▸ "
		}
		mark := a.Palette.Muted("·")
		for _, e := range snap.TaskResults {
			if e.TaskID != t.ID || !e.Result.Graded {
				continue
			}
			mark = a.Palette.Fail("✗")
			if e.Result.Passed {
				mark = a.Palette.OK("✓")
			}
		}
		fmt.Fprintf(a.Out, "%s%s %2d. %s\n", cursor, mark, i+1, t.ID)
	}
	return nil
}

// SessionClear drops the saved run.
func (a *App) SessionClear(ctx context.Context) error {
	if err := a.Bench.Discard(ctx); err != nil {
		return err
	}
	printSystemMessage(a.Out, "Saved session cleared.")
	return nil
}

// ensureSession resumes the saved run unless one is already loaded.
func (a *App) ensureSession(ctx context.Context) error {
	if a.Bench.State().Active() {
		return nil
	}
	if _, err := a.Bench.Resume(ctx); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("%w: start one with practice, quick or exam", domain.ErrNoSession)
		}
		return err
	}
	return nil
}

// Grade grades one task of the saved run.
func (a *App) Grade(ctx context.Context, taskID string, target domain.Target) error {
	if err := a.ensureSession(ctx); err != nil {
		return err
	}
	var (
		res grading.SingleResult
		err error
	)
	if taskID == "" {
		res, err = a.Bench.GradeCurrent(ctx, target)
	} else {
		res, err = a.Bench.GradeTask(ctx, taskID, target)
	}
	if err != nil {
		return err
	}
	a.printSingle(res)
	return nil
}

func (a *App) printSingle(res grading.SingleResult) {
	switch res.Status {
	case grading.SinglePassed:
		fmt.Fprintf(a.Out, "%s %s\n", a.Palette.OK("✓ PASSED"), res.Message)
	case grading.SingleFailed:
		fmt.Fprintf(a.Out, "%s %s\n", a.Palette.Fail("✗ FAILED"), res.Message)
	default:
		fmt.Fprintf(a.Out, "%s %s\n", a.Palette.Warn("! "+strings.ToUpper(string(res.Status))), res.Message)
	}
	if res.Response == nil {
		return
	}
	for _, d := range res.Response.Details {
		fmt.Fprintf(a.Out, "    %s\n", d)
	}
}

// Submit grades the saved run end to end.
func (a *App) Submit(ctx context.Context) error {
	if err := a.ensureSession(ctx); err != nil {
		return err
	}
	return a.submit(ctx)
}

// submit runs the grading flow. Cancelling ctx cancels the run's token
// only; requests already in flight finish and are recorded.
func (a *App) submit(ctx context.Context) error {
	token := grading.NewToken()
	stop := context.AfterFunc(ctx, token.Cancel)
	defer stop()
	if ctx.Err() != nil {
		token.Cancel()
	}

	out, err := a.Bench.Submit(context.WithoutCancel(ctx), token)
	if err != nil {
		return err
	}
	return a.printOutcome(out)
}

func (a *App) printOutcome(out *grading.Outcome) error {
	switch out.Phase {
	case grading.PhaseCompleted:
		a.markdown(report.Summarize(out).Markdown())
		if !out.Submitted {
			printSystemMessage(a.Out, "%s", a.Palette.Warn("Results could not be saved to history."))
		}
		return nil
	case grading.PhaseCancelled:
		if a.Quiet {
			printSystemMessage(a.Out, "%s", out.Message)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRunAborted, out.Message)
}

// StartPractice begins a practice run over ids, or over category when ids
// is empty.
func (a *App) StartPractice(ctx context.Context, ids []string, category string) error {
	if len(ids) == 0 && category != "" {
		return a.Bench.StartCategory(ctx, category)
	}
	return a.Bench.StartPractice(ctx, ids)
}

// StartQuick loads every task and probes the lab, printing each step.
func (a *App) StartQuick(ctx context.Context) error {
	labels := map[labexam.Step]string{
		labexam.StepTasks:  "Loading tasks",
		labexam.StepConfig: "Checking configuration",
		labexam.StepNode1:  "Probing node1",
		labexam.StepNode2:  "Probing node2",
	}
	return a.Bench.StartQuick(ctx, func(step labexam.Step, status labexam.StepStatus) {
		if status == labexam.StepActive {
			return
		}
		fmt.Fprintf(a.Out, "  %s %s\n", tui.StepMark(a.Palette, string(status)), labels[step])
	})
}

// StartExam checks readiness and begins a timed exam.
func (a *App) StartExam(ctx context.Context, count int) error {
	return a.Bench.StartExam(ctx, count)
}
