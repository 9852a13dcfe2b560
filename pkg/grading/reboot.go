package grading

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/labexam/pkg/domain"
)

const rebootTimeoutMessage = "failed to come back online (timeout)"

// NodeOutcome is the result of rebooting one node.
type NodeOutcome struct {
	Node    domain.Target `json:"node"`
	OK      bool          `json:"ok"`
	Message string        `json:"message,omitempty"`
}

// Label renders the outcome as "Node1: <message>".
func (n NodeOutcome) Label() string {
	name := strings.ToUpper(string(n.Node[:1])) + string(n.Node[1:])
	msg := n.Message
	if msg == "" {
		msg = rebootTimeoutMessage
	}
	return name + ": " + msg
}

func failureMessage(nodes []NodeOutcome) string {
	var failed []string
	for _, n := range nodes {
		if !n.OK {
			failed = append(failed, n.Label())
		}
	}
	return strings.Join(failed, "; ")
}

// rebootForGrading restarts both nodes in parallel while the progress
// ticker runs. It returns once both calls finished and the settle time
// elapsed. Cancelling the token ends the settle wait early.
func (o *Orchestrator) rebootForGrading(ctx context.Context, token *Token) []NodeOutcome {
	start := time.Now()
	tickCtx, stopTicker := context.WithCancel(ctx)
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		o.runTicker(tickCtx, token)
	}()

	outcomes := make([]NodeOutcome, len(domain.Nodes))
	var g errgroup.Group
	for i, node := range domain.Nodes {
		g.Go(func() error {
			resp, err := o.backend.Reboot(ctx, node)
			switch {
			case err != nil:
				o.logger.Warn("reboot request failed", "node", string(node), "error", err)
				outcomes[i] = NodeOutcome{Node: node}
			default:
				outcomes[i] = NodeOutcome{Node: node, OK: resp.OK, Message: resp.Message}
			}
			return nil
		})
	}
	_ = g.Wait()

	if remaining := o.settle - time.Since(start); remaining > 0 {
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-token.Done():
			timer.Stop()
		}
	}

	stopTicker()
	<-tickerDone
	return outcomes
}

// runTicker advances the cosmetic progress by half a percent per tick,
// capped at 95, until ctx is done. It pauses while the token is cancelled.
func (o *Orchestrator) runTicker(ctx context.Context, token *Token) {
	if o.tick <= 0 {
		return
	}
	t := time.NewTicker(o.tick)
	defer t.Stop()

	p := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if token.Cancelled() {
				continue
			}
			p += 0.5
			if p > 95 {
				p = 95
			}
			o.hooks.rebootProgress(p, rebootStage(p))
		}
	}
}

func rebootStage(p float64) string {
	switch {
	case p < 15:
		return "Sending reboot signals to VMs..."
	case p < 40:
		return "Systems are ensuring configurations persist..."
	case p < 70:
		return "Waiting for SSH services to come back online..."
	}
	return "Finalizing connection establishment..."
}

// Reboot restarts node1, node2 or both, without settle wait or readiness
// gate. Transport failures are reported as "Network error".
func (o *Orchestrator) Reboot(ctx context.Context, target domain.Target) []NodeOutcome {
	nodes := []domain.Target{target}
	if target == domain.TargetBoth {
		nodes = domain.Nodes
	}

	outcomes := make([]NodeOutcome, len(nodes))
	var g errgroup.Group
	for i, node := range nodes {
		g.Go(func() error {
			resp, err := o.backend.Reboot(ctx, node)
			if err != nil {
				o.logger.Warn("reboot request failed", "node", string(node), "error", err)
				outcomes[i] = NodeOutcome{Node: node, Message: "Network error"}
				return nil
			}
			outcomes[i] = NodeOutcome{Node: node, OK: resp.OK, Message: resp.Message}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// AllOK reports whether every node came back.
func AllOK(nodes []NodeOutcome) bool {
	for _, n := range nodes {
		if !n.OK {
			return false
		}
	}
	return len(nodes) > 0
}
