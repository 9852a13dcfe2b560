// Package catalog caches the task catalog served by the lab backend and
// provides the filtering used by the practice setup.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// Cache holds the full task list after the first successful fetch.
// A failed fetch is not cached; the next call retries.
type Cache struct {
	source ports.TaskSource
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []domain.Task
	loaded bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache reading from source.
func New(source ports.TaskSource, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// All returns every task in catalog order.
func (c *Cache) All(ctx context.Context) ([]domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.tasks, nil
	}

	tasks, err := c.source.ListTasks(ctx)
	if err != nil {
		c.logger.Warn("task catalog fetch failed", "error", err)
		return nil, fmt.Errorf("load task catalog: %w", err)
	}
	c.tasks = tasks
	c.loaded = true
	c.logger.Debug("task catalog loaded", "count", len(tasks))
	return c.tasks, nil
}

// Select returns the catalog tasks whose id is in ids, in catalog order.
// Unknown ids are ignored.
func (c *Cache) Select(ctx context.Context, ids []string) ([]domain.Task, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []domain.Task
	for _, t := range all {
		if _, ok := wanted[t.ID]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// ByCategory returns the tasks of one category in catalog order.
func (c *Cache) ByCategory(ctx context.Context, category string) ([]domain.Task, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, t := range all {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

// Find returns the task with the given id.
func (c *Cache) Find(ctx context.Context, id string) (domain.Task, error) {
	all, err := c.All(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrUnknownTask, id)
}

// CategoryCount is a category with the number of catalog tasks in it.
type CategoryCount struct {
	Name  string
	Count int
}

// Label returns the display form of the category.
func (c CategoryCount) Label() string {
	return domain.CategoryLabel(c.Name)
}

// Categories returns the distinct categories sorted by name.
func (c *Cache) Categories(ctx context.Context) ([]CategoryCount, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range all {
		counts[t.Category]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Random asks the backend for count random tasks. The result is not cached.
func (c *Cache) Random(ctx context.Context, count int) ([]domain.Task, error) {
	tasks, err := c.source.RandomTasks(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("random tasks: %w", err)
	}
	return tasks, nil
}

// SortOrder is the ordering of the practice setup list.
type SortOrder string

const (
	SortByID       SortOrder = "id"
	SortByCategory SortOrder = "category"
)

// Query filters and orders a task list.
type Query struct {
	// Category limits the list to one category; empty means all.
	Category string
	// Search is matched case-insensitively against id and description.
	Search string
	Sort   SortOrder
}

// Filter applies q to tasks and returns a new slice. The input is not modified.
func Filter(tasks []domain.Task, q Query) []domain.Task {
	term := strings.ToLower(q.Search)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if q.Category != "" && t.Category != q.Category {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(t.ID), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			continue
		}
		out = append(out, t)
	}

	switch q.Sort {
	case SortByCategory:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Category != out[j].Category {
				return out[i].Category < out[j].Category
			}
			return domain.CompareIDs(out[i].ID, out[j].ID) < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return domain.CompareIDs(out[i].ID, out[j].ID) < 0
		})
	}
	return out
}
