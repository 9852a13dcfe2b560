package ports

import (
	"context"

	"github.com/aretw0/labexam/pkg/domain"
)

// ConfigSource reads and writes the lab configuration.
type ConfigSource interface {
	GetConfig(ctx context.Context) (*domain.VMConfig, error)
	SaveConfig(ctx context.Context, update domain.ConfigUpdate) error
}

// ConnectionTester probes SSH reachability of the lab nodes.
type ConnectionTester interface {
	// TestConnection probes every node.
	TestConnection(ctx context.Context) (*domain.ConnectionStatus, error)
	// TestNode probes a single node and reports whether it answered.
	TestNode(ctx context.Context, node domain.Target) (bool, error)
}

// TaskSource serves the task catalog.
type TaskSource interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	RandomTasks(ctx context.Context, count int) ([]domain.Task, error)
}

// Grader grades one task against a target.
type Grader interface {
	Grade(ctx context.Context, taskID string, target domain.Target) (*domain.GradeResponse, error)
}

// Rebooter restarts a single node and waits for it to come back.
type Rebooter interface {
	Reboot(ctx context.Context, node domain.Target) (*domain.RebootResponse, error)
}

// ResultsStore persists aggregate results.
type ResultsStore interface {
	SubmitResults(ctx context.Context, sub domain.ResultSubmission) error
	ClearResults(ctx context.Context) (*domain.ClearResponse, error)
}

// IPDiscoverer asks the backend to find node addresses.
type IPDiscoverer interface {
	DiscoverIPs(ctx context.Context) (*domain.DiscoveredIPs, error)
}

// StatsSource serves the historical statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*domain.Stats, error)
}

// LabAPI is the full backend boundary.
type LabAPI interface {
	ConfigSource
	ConnectionTester
	TaskSource
	Grader
	Rebooter
	ResultsStore
	IPDiscoverer
	StatsSource
}
