// Package projector derives display models (sidebar, navigation, progress)
// from session data. Every function here is pure.
package projector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/labexam/pkg/domain"
)

// ItemStatus is the grading mark shown next to a task.
type ItemStatus string

const (
	ItemUngraded ItemStatus = ""
	ItemPassed   ItemStatus = "passed"
	ItemFailed   ItemStatus = "failed"
)

// Item is one sidebar row.
type Item struct {
	// Number is the 1-based position in the selected tasks.
	Number int           `json:"number"`
	Index  int           `json:"index"`
	Task   domain.Task   `json:"task"`
	Target domain.Target `json:"target"`
	Status ItemStatus    `json:"status,omitempty"`
	Active bool          `json:"active"`
}

// Group is a category section of the grouped sidebar.
type Group struct {
	Category  string `json:"category"`
	Label     string `json:"label"`
	Collapsed bool   `json:"collapsed"`
	Items     []Item `json:"items"`
}

// View is the projected sidebar. Exactly one of Groups or Items is used,
// depending on Grouped.
type View struct {
	Grouped bool    `json:"grouped"`
	Groups  []Group `json:"groups,omitempty"`
	Items   []Item  `json:"items,omitempty"`
}

// Empty reports whether nothing matched the search.
func (v View) Empty() bool {
	if v.Grouped {
		return len(v.Groups) == 0
	}
	return len(v.Items) == 0
}

// Input is everything the sidebar depends on.
type Input struct {
	Tasks   []domain.Task
	Results map[string]domain.TaskResult
	Index   int
	Search  string
	// Grouped selects the category view; false is the flat (shuffled) view.
	Grouped   bool
	Collapsed func(category string) bool
}

// Sidebar projects the task list. Grouped views sort categories by name and
// keep tasks in selection order within a category; flat views keep the
// selection order as is.
func Sidebar(in Input) View {
	term := strings.ToLower(in.Search)
	items := make([]Item, 0, len(in.Tasks))
	for i, t := range in.Tasks {
		if !t.Matches(term) {
			continue
		}
		item := Item{
			Number: i + 1,
			Index:  i,
			Task:   t,
			Target: t.EffectiveTarget(),
			Active: i == in.Index,
		}
		if r, ok := in.Results[t.ID]; ok {
			item.Status = ItemFailed
			if r.Passed {
				item.Status = ItemPassed
			}
		}
		items = append(items, item)
	}

	if !in.Grouped {
		return View{Items: items}
	}

	byCat := make(map[string][]Item)
	var cats []string
	for _, it := range items {
		c := it.Task.Category
		if _, ok := byCat[c]; !ok {
			cats = append(cats, c)
		}
		byCat[c] = append(byCat[c], it)
	}
	sort.Strings(cats)

	v := View{Grouped: true, Groups: make([]Group, 0, len(cats))}
	for _, c := range cats {
		g := Group{
			Category: c,
			Label:    domain.CategoryLabel(c),
			Items:    byCat[c],
		}
		if in.Collapsed != nil {
			g.Collapsed = in.Collapsed(c)
		}
		v.Groups = append(v.Groups, g)
	}
	return v
}

// Categories returns the distinct categories of tasks in first-seen order.
func Categories(tasks []domain.Task) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tasks {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}

// Collapse tracks which category groups are folded. Safe for concurrent use.
type Collapse struct {
	mu  sync.Mutex
	set map[string]bool
}

// NewCollapse returns an empty set with every group expanded.
func NewCollapse() *Collapse {
	return &Collapse{set: make(map[string]bool)}
}

// Reset folds every given category, as at the start of a run.
func (c *Collapse) Reset(categories []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = make(map[string]bool, len(categories))
	for _, cat := range categories {
		c.set[cat] = true
	}
}

// Toggle folds or unfolds one category and returns its new state.
func (c *Collapse) Toggle(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[category] = !c.set[category]
	return c.set[category]
}

// ToggleAll expands everything when all categories are folded and folds
// everything otherwise. It returns true when the groups end up folded.
func (c *Collapse) ToggleAll(categories []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := len(categories) > 0
	for _, cat := range categories {
		if !c.set[cat] {
			all = false
			break
		}
	}
	for _, cat := range categories {
		c.set[cat] = !all
	}
	return !all
}

// Collapsed reports whether a category is folded.
func (c *Collapse) Collapsed(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set[category]
}

// Nav is the navigation bar state.
type Nav struct {
	HasPrev   bool   `json:"has_prev"`
	HasNext   bool   `json:"has_next"`
	Indicator string `json:"indicator"`
}

// Navigation derives the prev/next affordances for a cursor.
func Navigation(length, index int) Nav {
	if length == 0 {
		return Nav{}
	}
	return Nav{
		HasPrev:   index > 0,
		HasNext:   index < length-1,
		Indicator: fmt.Sprintf("Task %d of %d", index+1, length),
	}
}

// JumpEntry is an entry of the jump-to list.
type JumpEntry struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// JumpList lists every task as "n. id".
func JumpList(tasks []domain.Task) []JumpEntry {
	out := make([]JumpEntry, len(tasks))
	for i, t := range tasks {
		out[i] = JumpEntry{Index: i, Label: fmt.Sprintf("%d. %s", i+1, t.ID)}
	}
	return out
}

// ProgressView is the graded counter.
type ProgressView struct {
	Graded  int     `json:"graded"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Label renders "graded/total".
func (p ProgressView) Label() string {
	return fmt.Sprintf("%d/%d", p.Graded, p.Total)
}

// Progress computes the graded share of a run.
func Progress(graded, total int) ProgressView {
	p := ProgressView{Graded: graded, Total: total}
	if total > 0 {
		p.Percent = float64(graded) / float64(total) * 100
	}
	return p
}
