package grading

import (
	"context"
	"fmt"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
)

// SingleStatus classifies a single-task grading attempt.
type SingleStatus string

const (
	SingleNotReady  SingleStatus = "not_ready"
	SinglePassed    SingleStatus = "passed"
	SingleFailed    SingleStatus = "failed"
	SingleError     SingleStatus = "error"
	SingleTransport SingleStatus = "transport"
)

// SingleResult is the outcome of grading one task on demand.
type SingleResult struct {
	TaskID   string               `json:"task_id"`
	Status   SingleStatus         `json:"status"`
	Reason   readiness.Reason     `json:"reason,omitempty"`
	Message  string               `json:"message"`
	Response *domain.GradeResponse `json:"response,omitempty"`
}

// GradeOne grades a single task against target (empty for the task default).
// The readiness gate runs first. The result is recorded in the session only
// when the backend produced a verdict.
func (o *Orchestrator) GradeOne(ctx context.Context, st *session.State, taskID string, target domain.Target) SingleResult {
	res := SingleResult{TaskID: taskID}
	gen := st.Generation()

	ready := o.gate.Check(ctx)
	if !ready.Ready {
		res.Status = SingleNotReady
		res.Reason = ready.Reason
		res.Message = "VMs unreachable"
		if ready.Reason == readiness.ReasonConfig {
			res.Message = "VMs not configured"
		}
		return res
	}

	resp, err := o.backend.Grade(ctx, taskID, target)
	if err != nil {
		o.logger.Warn("single grade failed", "task", taskID, "error", err)
		res.Status = SingleTransport
		res.Message = "Failed to reach grading server."
		return res
	}
	res.Response = resp

	switch {
	case resp.Failed():
		res.Status = SingleError
		res.Message = "Error: " + resp.ErrorText()
	case resp.Passed:
		res.Status = SinglePassed
		res.Message = fmt.Sprintf("ALL PASSED (%d/%d pts)", resp.Points, resp.MaxPoints)
		st.RecordResultIn(ctx, gen, taskID, true, resp.Points, resp.MaxPoints)
	default:
		res.Status = SingleFailed
		res.Message = fmt.Sprintf("%d/%d checks passed (%d/%d pts)", resp.ChecksPassed, resp.ChecksTotal, resp.Points, resp.MaxPoints)
		st.RecordResultIn(ctx, gen, taskID, false, resp.Points, resp.MaxPoints)
	}
	return res
}
