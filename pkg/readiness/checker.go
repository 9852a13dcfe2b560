// Package readiness implements the precondition gate consulted before any
// operation that needs the lab nodes: configuration present and both nodes
// reachable.
package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// Reason explains why the lab is not ready.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonConfig     Reason = "config"
	ReasonConnection Reason = "connection"
	ReasonError      Reason = "error"
)

// Result is the outcome of a readiness check.
type Result struct {
	Ready  bool   `json:"ready"`
	Reason Reason `json:"reason,omitempty"`
}

// Message returns the user-facing explanation of the result.
func (r Result) Message() string {
	switch {
	case r.Ready:
		return "Both VMs are online."
	case r.Reason == ReasonConfig:
		return "Please configure VM IPs and root password first."
	case r.Reason == ReasonConnection:
		return "Cannot connect to VMs. Make sure both VMs are running and reachable."
	}
	return "Failed to check VM status."
}

// Backend is what the checker needs from the lab API.
type Backend interface {
	ports.ConfigSource
	ports.ConnectionTester
}

// Checker answers "can we talk to the lab right now". It never touches
// session state and is safe for concurrent use.
type Checker struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.Mutex
	config *domain.VMConfig
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker.
func New(backend Backend, opts ...Option) *Checker {
	c := &Checker{
		backend: backend,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the cached configuration, fetching it on first use.
func (c *Checker) Config(ctx context.Context) (*domain.VMConfig, error) {
	c.mu.Lock()
	if c.config != nil {
		cfg := *c.config
		c.mu.Unlock()
		return &cfg, nil
	}
	c.mu.Unlock()

	cfg, err := c.backend.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	c.mu.Lock()
	if c.config == nil {
		c.config = cfg
	}
	out := *c.config
	c.mu.Unlock()
	return &out, nil
}

// SetConfig replaces the cached configuration, for example after a save.
func (c *Checker) SetConfig(cfg *domain.VMConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == nil {
		c.config = nil
		return
	}
	cp := *cfg
	c.config = &cp
}

// Invalidate drops the cached configuration so the next check refetches it.
func (c *Checker) Invalidate() {
	c.SetConfig(nil)
}

// Check runs the readiness gate. Missing configuration short-circuits
// without probing the nodes.
func (c *Checker) Check(ctx context.Context) Result {
	cfg, err := c.Config(ctx)
	if err != nil {
		c.logger.Warn("readiness config fetch failed", "error", err)
		return Result{Reason: ReasonError}
	}
	if cfg.Node1IP == "" || cfg.Node2IP == "" || !cfg.HasPassword {
		return Result{Reason: ReasonConfig}
	}

	status, err := c.backend.TestConnection(ctx)
	if err != nil {
		c.logger.Warn("readiness probe failed", "error", err)
		return Result{Reason: ReasonError}
	}
	if status.Node1 && status.Node2 {
		return Result{Ready: true}
	}
	c.logger.Info("lab nodes unreachable", "node1", status.Node1, "node2", status.Node2)
	return Result{Reason: ReasonConnection}
}

// ProbeNodes tests every node separately and in parallel. A failed probe
// counts as unreachable.
func (c *Checker) ProbeNodes(ctx context.Context) map[domain.Target]bool {
	out := make(map[domain.Target]bool, len(domain.Nodes))
	var mu sync.Mutex
	var g errgroup.Group
	for _, node := range domain.Nodes {
		g.Go(func() error {
			ok, err := c.backend.TestNode(ctx, node)
			if err != nil {
				c.logger.Warn("node probe failed", "node", string(node), "error", err)
				ok = false
			}
			mu.Lock()
			out[node] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
