package domain

import (
	"strings"
	"unicode"
)

// Target identifies which lab node(s) a task is graded against.
type Target string

const (
	TargetNode1 Target = "node1"
	TargetNode2 Target = "node2"
	TargetBoth  Target = "both"
)

// Valid reports whether t is one of the known targets.
func (t Target) Valid() bool {
	switch t {
	case TargetNode1, TargetNode2, TargetBoth:
		return true
	}
	return false
}

// Label returns the human form of the target ("node1 & node2" for both).
func (t Target) Label() string {
	if t == TargetBoth {
		return "node1 & node2"
	}
	return string(t)
}

// Nodes are the two managed virtual machines, in reboot and probe order.
var Nodes = []Target{TargetNode1, TargetNode2}

// Mode is the kind of run a session represents.
type Mode string

const (
	ModePractice Mode = "practice"
	ModeExam     Mode = "exam"
)

// Label returns the capitalised mode name used in banners and breadcrumbs.
func (m Mode) Label() string {
	if m == ModeExam {
		return "Exam"
	}
	return "Practice"
}

// Task is a gradable unit of work. Tasks come from the catalog and are never
// mutated by a session.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Target      Target `json:"target,omitempty"`
}

// EffectiveTarget returns the task target, defaulting to node1.
func (t Task) EffectiveTarget() Target {
	if t.Target == "" {
		return TargetNode1
	}
	return t.Target
}

// Matches reports whether the lower-cased search term is contained in the
// description, id or category of the task. An empty term matches everything.
func (t Task) Matches(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(t.Description), term) ||
		strings.Contains(strings.ToLower(t.ID), term) ||
		strings.Contains(strings.ToLower(t.Category), term)
}

// TaskResult is the latest grading outcome of a task in the current session.
type TaskResult struct {
	TaskID    string `json:"taskId"`
	Passed    bool   `json:"passed"`
	Points    int    `json:"points"`
	MaxPoints int    `json:"maxPoints"`
	Graded    bool   `json:"graded"`
}

// CategoryLabel turns a category slug ("file-systems") into display text.
func CategoryLabel(category string) string {
	return strings.ReplaceAll(category, "-", " ")
}

// CompareIDs orders task ids naturally, so that "task-2" sorts before "task-10".
// It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			if c := compareDigits(string(ra[si:i]), string(rb[sj:j])); c != 0 {
				return c
			}
			continue
		}
		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(ra)-i < len(rb)-j:
		return -1
	case len(ra)-i > len(rb)-j:
		return 1
	}
	return strings.Compare(a, b)
}

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
