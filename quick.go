package labexam

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/readiness"
)

// Step is one stage of the quick-practice startup.
type Step string

const (
	StepTasks  Step = "tasks"
	StepConfig Step = "config"
	StepNode1  Step = "node1"
	StepNode2  Step = "node2"
)

// StepStatus is the state of a startup step.
type StepStatus string

const (
	StepActive StepStatus = "active"
	StepDone   StepStatus = "done"
	StepFailed StepStatus = "fail"
)

// StepFunc observes quick-practice progress. It may be called from several
// goroutines at once while the nodes are probed.
type StepFunc func(step Step, status StepStatus)

// StartQuick loads the whole catalog, verifies the configuration and probes
// both nodes in parallel, then begins an untimed run over every task. Each
// stage is reported to onStep, which may be nil.
func (w *Workbench) StartQuick(ctx context.Context, onStep StepFunc) error {
	if err := w.idle(); err != nil {
		return err
	}
	var mu sync.Mutex
	report := func(s Step, st StepStatus) {
		if onStep == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onStep(s, st)
	}

	report(StepTasks, StepActive)
	tasks, err := w.catalog.All(ctx)
	if err != nil {
		report(StepTasks, StepFailed)
		return err
	}
	report(StepTasks, StepDone)

	report(StepConfig, StepActive)
	cfg, err := w.checker.Config(ctx)
	if err != nil {
		report(StepConfig, StepFailed)
		return &NotReadyError{Result: readiness.Result{Reason: readiness.ReasonError}}
	}
	if !cfg.Complete() {
		report(StepConfig, StepFailed)
		return &NotReadyError{Result: readiness.Result{Reason: readiness.ReasonConfig}}
	}
	report(StepConfig, StepDone)

	steps := map[domain.Target]Step{domain.TargetNode1: StepNode1, domain.TargetNode2: StepNode2}
	reachable := make(map[domain.Target]bool, len(steps))
	var g errgroup.Group
	for _, node := range domain.Nodes {
		report(steps[node], StepActive)
		g.Go(func() error {
			ok, err := w.api.TestNode(ctx, node)
			if err != nil {
				w.logger.Warn("node probe failed", "node", string(node), "err", err)
				ok = false
			}
			mu.Lock()
			reachable[node] = ok
			mu.Unlock()
			if ok {
				report(steps[node], StepDone)
			} else {
				report(steps[node], StepFailed)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !reachable[domain.TargetNode1] || !reachable[domain.TargetNode2] {
		return &NotReadyError{Result: readiness.Result{Reason: readiness.ReasonConnection}}
	}
	return w.start(ctx, tasks, domain.ModePractice, false)
}
