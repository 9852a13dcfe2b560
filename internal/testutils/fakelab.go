// Package testutils provides shared test doubles.
package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// ErrTransport is the error FakeLab returns for injected network failures.
var ErrTransport = errors.New("connection refused")

// FakeLab is an in-memory ports.LabAPI. Zero values of the response fields
// mean "succeed with a sensible default". All methods are safe for
// concurrent use; fields must be set before the fake is shared.
type FakeLab struct {
	mu sync.Mutex

	Tasks     []domain.Task
	TasksErr  error
	RandomErr error

	Config    *domain.VMConfig
	ConfigErr error
	SaveErr   error
	Saved     []domain.ConfigUpdate

	Connection    *domain.ConnectionStatus
	ConnectionErr error
	NodeUp        map[domain.Target]bool
	NodeErr       map[domain.Target]error

	// GradeFunc overrides the default grading (pass with 10 points).
	GradeFunc func(ctx context.Context, taskID string, target domain.Target) (*domain.GradeResponse, error)

	// RebootFunc overrides the default reboot (ok).
	RebootFunc func(ctx context.Context, node domain.Target) (*domain.RebootResponse, error)

	SubmitErr   error
	Submissions []domain.ResultSubmission

	Discovered  *domain.DiscoveredIPs
	DiscoverErr error

	StatsValue *domain.Stats
	StatsErr   error

	Cleared int

	calls map[string]int
}

var _ ports.LabAPI = (*FakeLab)(nil)

// NewFakeLab returns a FakeLab with a complete configuration, both nodes
// reachable and the given catalog.
func NewFakeLab(tasks ...domain.Task) *FakeLab {
	return &FakeLab{
		Tasks: tasks,
		Config: &domain.VMConfig{
			Node1: "node1", Node1IP: "10.0.0.11",
			Node2: "node2", Node2IP: "10.0.0.12",
			HasPassword: true,
		},
		Connection: &domain.ConnectionStatus{Node1: true, Node2: true},
	}
}

func (f *FakeLab) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (f *FakeLab) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Submitted returns a copy of the recorded submissions.
func (f *FakeLab) Submitted() []domain.ResultSubmission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ResultSubmission(nil), f.Submissions...)
}

func (f *FakeLab) GetConfig(ctx context.Context) (*domain.VMConfig, error) {
	f.record("GetConfig")
	if f.ConfigErr != nil {
		return nil, f.ConfigErr
	}
	if f.Config == nil {
		return &domain.VMConfig{}, nil
	}
	cfg := *f.Config
	return &cfg, nil
}

func (f *FakeLab) SaveConfig(ctx context.Context, update domain.ConfigUpdate) error {
	f.record("SaveConfig")
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Saved = append(f.Saved, update)
	return nil
}

func (f *FakeLab) TestConnection(ctx context.Context) (*domain.ConnectionStatus, error) {
	f.record("TestConnection")
	if f.ConnectionErr != nil {
		return nil, f.ConnectionErr
	}
	if f.Connection == nil {
		return &domain.ConnectionStatus{}, nil
	}
	st := *f.Connection
	return &st, nil
}

func (f *FakeLab) TestNode(ctx context.Context, node domain.Target) (bool, error) {
	f.record("TestNode")
	if err := f.NodeErr[node]; err != nil {
		return false, err
	}
	if f.NodeUp != nil {
		return f.NodeUp[node], nil
	}
	return true, nil
}

func (f *FakeLab) ListTasks(ctx context.Context) ([]domain.Task, error) {
	f.record("ListTasks")
	if f.TasksErr != nil {
		return nil, f.TasksErr
	}
	return append([]domain.Task(nil), f.Tasks...), nil
}

// RandomTasks returns the first count catalog tasks.
func (f *FakeLab) RandomTasks(ctx context.Context, count int) ([]domain.Task, error) {
	f.record("RandomTasks")
	if f.RandomErr != nil {
		return nil, f.RandomErr
	}
	if count > len(f.Tasks) {
		count = len(f.Tasks)
	}
	return append([]domain.Task(nil), f.Tasks[:count]...), nil
}

func (f *FakeLab) Grade(ctx context.Context, taskID string, target domain.Target) (*domain.GradeResponse, error) {
	f.record("Grade")
	if f.GradeFunc != nil {
		return f.GradeFunc(ctx, taskID, target)
	}
	return &domain.GradeResponse{Passed: true, Points: 10, MaxPoints: 10, ChecksPassed: 1, ChecksTotal: 1}, nil
}

func (f *FakeLab) Reboot(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
	f.record("Reboot")
	if f.RebootFunc != nil {
		return f.RebootFunc(ctx, node)
	}
	return &domain.RebootResponse{OK: true}, nil
}

func (f *FakeLab) SubmitResults(ctx context.Context, sub domain.ResultSubmission) error {
	f.record("SubmitResults")
	if f.SubmitErr != nil {
		return f.SubmitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions = append(f.Submissions, sub)
	return nil
}

func (f *FakeLab) ClearResults(ctx context.Context) (*domain.ClearResponse, error) {
	f.record("ClearResults")
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.Submissions)
	f.Submissions = nil
	f.Cleared += n
	return &domain.ClearResponse{Status: "ok", Deleted: n}, nil
}

func (f *FakeLab) DiscoverIPs(ctx context.Context) (*domain.DiscoveredIPs, error) {
	f.record("DiscoverIPs")
	if f.DiscoverErr != nil {
		return nil, f.DiscoverErr
	}
	if f.Discovered == nil {
		return &domain.DiscoveredIPs{Method: "none"}, nil
	}
	d := *f.Discovered
	return &d, nil
}

func (f *FakeLab) Stats(ctx context.Context) (*domain.Stats, error) {
	f.record("Stats")
	if f.StatsErr != nil {
		return nil, f.StatsErr
	}
	if f.StatsValue == nil {
		return &domain.Stats{}, nil
	}
	s := *f.StatsValue
	return &s, nil
}

// SampleTasks is a small catalog spanning three categories.
func SampleTasks() []domain.Task {
	return []domain.Task{
		{ID: "users-01", Description: "Create user alice with UID 2001", Category: "users-groups"},
		{ID: "lvm-01", Description: "Create a 500M logical volume", Category: "storage"},
		{ID: "selinux-01", Description: "Set SELinux to enforcing", Category: "security", Target: domain.TargetNode2},
		{ID: "lvm-02", Description: "Extend the volume group", Category: "storage"},
		{ID: "users-02", Description: "Create group admins", Category: "users-groups"},
	}
}
