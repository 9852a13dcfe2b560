package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/aretw0/labexam/pkg/session"
)

const shellHelp = `Commands:
  show              show the current task
  next, n           next task
  prev, p           previous task
  goto N|ID         jump to a task (no argument lists them)
  list [SEARCH]     task list with results
  grade [TARGET]    grade the current task (node1, node2, both)
  sort              toggle random and category order
  collapse [CAT]    fold a category in the list (no argument folds all)
  submit            reboot the VMs and grade every task
  time              time left in the exam
  help              this text
  quit, q           leave; progress is kept
`

// errShellDone ends the loop without an error.
var errShellDone = errors.New("shell done")

type lineResult struct {
	line string
	err  error
}

// readLines feeds scanned lines to a channel until the input ends or done
// is closed. The channel is closed on return.
func readLines(in *bufio.Scanner, done <-chan struct{}) <-chan lineResult {
	ch := make(chan lineResult)
	go func() {
		defer close(ch)
		for in.Scan() {
			select {
			case ch <- lineResult{line: in.Text()}:
			case <-done:
				return
			}
		}
		err := in.Err()
		if errors.Is(err, bufio.ErrTooLong) {
			err = ErrLineTooLarge
		}
		if err != nil {
			select {
			case ch <- lineResult{err: err}:
			case <-done:
			}
		}
	}()
	return ch
}

// ResumeBanner describes a saved run, or returns "" when there is none.
func (a *App) ResumeBanner(ctx context.Context) (string, error) {
	snap, err := a.Bench.Saved(ctx)
	if err != nil || snap == nil {
		return "", err
	}
	return "Saved session: " + session.Describe(snap, a.now()), nil
}

// Shell runs the interactive loop over the active run. It returns when the
// user quits, the input ends, ctx is cancelled or a submitted run completes.
// A timed run is submitted automatically when its time is up.
func (a *App) Shell(ctx context.Context) error {
	if !a.Bench.State().Active() {
		return domain.ErrNoSession
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if res := a.Bench.Readiness(ctx); !res.Ready && ctx.Err() == nil {
			printSystemMessage(a.Out, "%s", a.Palette.Warn(res.Message()))
		}
	}()

	var expired <-chan time.Time
	if left, ok := a.Bench.Remaining(); ok {
		timer := time.NewTimer(left)
		defer timer.Stop()
		expired = timer.C
		printSystemMessage(a.Out, "Exam started. Time left: %s", tui.Countdown(left))
	}

	done := make(chan struct{})
	defer close(done)
	scanner := bufio.NewScanner(a.In)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize+1)
	lines := readLines(scanner, done)

	a.showCurrent()
	a.prompt()
	for {
		select {
		case <-ctx.Done():
			printSystemMessage(a.Out, "Interrupted. Progress saved.")
			return nil
		case <-expired:
			printSystemMessage(a.Out, "%s", a.Palette.Warn("Time is up! Submitting your exam..."))
			return a.submit(ctx)
		case in, ok := <-lines:
			if !ok {
				printSystemMessage(a.Out, "Progress saved. Continue with 'labexam resume'.")
				return nil
			}
			if in.err != nil {
				return in.err
			}
			line, err := SanitizeLine(in.line)
			if err != nil {
				printSystemMessage(a.Out, "%s", a.Palette.Fail(err.Error()))
				a.prompt()
				continue
			}
			err = a.dispatch(ctx, line)
			if errors.Is(err, errShellDone) {
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				printSystemMessage(a.Out, "%s", a.Palette.Fail(err.Error()))
			}
			a.prompt()
		}
	}
}

func (a *App) prompt() {
	st := a.Bench.State()
	label := fmt.Sprintf("%s %d/%d", st.Mode().Label(), st.Index()+1, st.Len())
	if left, ok := a.Bench.Remaining(); ok {
		label += " " + tui.Countdown(left)
	}
	fmt.Fprintf(a.Out, "%s> ", a.Palette.Info(label))
}

func (a *App) showCurrent() {
	st := a.Bench.State()
	task, ok := st.Current()
	if !ok {
		return
	}
	var res *domain.TaskResult
	if r, ok := st.Result(task.ID); ok {
		res = &r
	}
	a.markdown(tui.TaskMarkdown(task, projector.Navigation(st.Len(), st.Index()), res))
}

func (a *App) dispatch(ctx context.Context, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	st := a.Bench.State()

	switch strings.ToLower(cmd) {
	case "":
		return nil
	case "show":
		a.showCurrent()
	case "next", "n":
		if !st.Navigate(ctx, 1) {
			return errors.New("already at the last task")
		}
		a.showCurrent()
	case "prev", "p":
		if !st.Navigate(ctx, -1) {
			return errors.New("already at the first task")
		}
		a.showCurrent()
	case "goto", "g":
		return a.gotoTask(ctx, arg)
	case "list", "ls":
		fmt.Fprint(a.Out, tui.SidebarText(a.Palette, a.Bench.Sidebar(arg)))
		p := projector.Progress(st.GradedCount(), st.Len())
		fmt.Fprintf(a.Out, "%s %s graded\n", tui.ProgressBar(p.Percent, 20), p.Label())
	case "grade":
		target, err := ParseTarget(arg)
		if err != nil {
			return err
		}
		res, err := a.Bench.GradeCurrent(ctx, target)
		if err != nil {
			return err
		}
		a.printSingle(res)
	case "sort":
		random, err := st.ToggleSortMode(ctx)
		if err != nil {
			return err
		}
		if random {
			printSystemMessage(a.Out, "Tasks shuffled.")
		} else {
			printSystemMessage(a.Out, "Tasks grouped by category.")
		}
	case "collapse":
		var collapsed bool
		if arg == "" {
			collapsed = a.Bench.Collapse().ToggleAll(projector.Categories(st.Tasks()))
		} else {
			collapsed = a.Bench.Collapse().Toggle(arg)
		}
		fmt.Fprint(a.Out, tui.SidebarText(a.Palette, a.Bench.Sidebar("")))
		a.Logger.Debug("collapse toggled", "category", arg, "collapsed", collapsed)
	case "submit":
		return a.shellSubmit(ctx)
	case "time":
		left, ok := a.Bench.Remaining()
		if !ok {
			printSystemMessage(a.Out, "Practice runs are untimed.")
			return nil
		}
		printSystemMessage(a.Out, "Time left: %s", tui.Countdown(left))
	case "help", "h", "?":
		fmt.Fprint(a.Out, shellHelp)
	case "quit", "q", "exit":
		printSystemMessage(a.Out, "Progress saved. Continue with 'labexam resume'.")
		return errShellDone
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (a *App) gotoTask(ctx context.Context, arg string) error {
	st := a.Bench.State()
	if arg == "" {
		for _, e := range projector.JumpList(st.Tasks()) {
			fmt.Fprintf(a.Out, "  %s\n", e.Label)
		}
		return nil
	}
	var ok bool
	if n, err := strconv.Atoi(arg); err == nil {
		ok = st.Select(ctx, n-1)
	} else {
		ok = st.SelectID(ctx, arg)
	}
	if !ok {
		return fmt.Errorf("no task %q in this run", arg)
	}
	a.showCurrent()
	return nil
}

// shellSubmit grades the run and ends the shell once the run completed.
func (a *App) shellSubmit(ctx context.Context) error {
	st := a.Bench.State()
	if graded := st.GradedCount(); graded < st.Len() {
		printSystemMessage(a.Out, "%d of %d tasks not graded yet; submitting anyway.", st.Len()-graded, st.Len())
	}
	if err := a.submit(ctx); err != nil {
		return err
	}
	if !st.Active() {
		return errShellDone
	}
	return nil
}
