// Package report turns grading outcomes and backend statistics into
// display-ready summaries, including Markdown for terminal rendering.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
)

// Summary is the result screen of a completed run.
type Summary struct {
	Score      int
	Total      int
	Percentage int
	Passed     bool
	Status     string
	Checks     []domain.CheckResult
	Categories []CategoryLine
}

// CategoryLine is one row of the per-category breakdown.
type CategoryLine struct {
	Category string
	Label    string
	Earned   int
	Possible int
}

// Summarize builds the result view of an outcome.
func Summarize(out *grading.Outcome) Summary {
	s := Summary{
		Score:      out.Score,
		Total:      out.Total,
		Percentage: out.Percentage(),
		Passed:     out.Passed,
		Status:     "FAILED",
		Checks:     out.Checks,
	}
	if out.Passed {
		s.Status = "PASSED"
	}
	for cat, cs := range out.Categories {
		s.Categories = append(s.Categories, CategoryLine{
			Category: cat,
			Label:    domain.CategoryLabel(cat),
			Earned:   cs.Earned,
			Possible: cs.Possible,
		})
	}
	sort.Slice(s.Categories, func(i, j int) bool { return s.Categories[i].Category < s.Categories[j].Category })
	return s
}

// Markdown renders the summary.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Status)
	fmt.Fprintf(&b, "**Score:** %d / %d (%d%%)\n\n", s.Score, s.Total, s.Percentage)

	if len(s.Categories) > 0 {
		b.WriteString("| Category | Earned | Possible |\n|---|---|---|\n")
		for _, c := range s.Categories {
			fmt.Fprintf(&b, "| %s | %d | %d |\n", c.Label, c.Earned, c.Possible)
		}
		b.WriteString("\n")
	}

	if len(s.Checks) > 0 {
		b.WriteString("## Checks\n\n")
		for _, c := range s.Checks {
			mark := "✗"
			if c.Passed {
				mark = "✓"
			}
			fmt.Fprintf(&b, "- %s %s _(%s)_\n", mark, c.Check, c.Category)
		}
	}
	return b.String()
}

// Grade is the colour class of a category percentage.
type Grade string

const (
	GradeGood     Grade = "good"
	GradeOK       Grade = "ok"
	GradeBad      Grade = "bad"
	GradeUntested Grade = "untested"
)

// GradeFor classifies a tested percentage.
func GradeFor(pct int) Grade {
	switch {
	case pct >= 70:
		return GradeGood
	case pct >= 50:
		return GradeOK
	}
	return GradeBad
}

// CategoryStatLine is one category of the statistics view.
type CategoryStatLine struct {
	Category   string
	Label      string
	Tested     bool
	Percentage int
	Grade      Grade
}

// Stats is the statistics view.
type Stats struct {
	Empty         bool
	TotalAttempts int
	Passed        int
	PassRate      float64
	// WeakAreas are rendered as "label (pct%)".
	WeakAreas  []string
	Categories []CategoryStatLine
}

// StatsView orders categories tested first, then by percentage descending.
func StatsView(st *domain.Stats) Stats {
	if st == nil || st.TotalAttempts == 0 {
		return Stats{Empty: true}
	}
	v := Stats{
		TotalAttempts: st.TotalAttempts,
		Passed:        st.Passed,
		PassRate:      st.PassRate,
	}
	for _, w := range st.WeakAreas {
		v.WeakAreas = append(v.WeakAreas, fmt.Sprintf("%s (%d%%)", domain.CategoryLabel(w.Category), w.Percentage))
	}
	for cat, cs := range st.Categories {
		line := CategoryStatLine{
			Category:   cat,
			Label:      domain.CategoryLabel(cat),
			Tested:     cs.Tested,
			Percentage: cs.Percentage,
			Grade:      GradeUntested,
		}
		if cs.Tested {
			line.Grade = GradeFor(cs.Percentage)
		}
		v.Categories = append(v.Categories, line)
	}
	sort.Slice(v.Categories, func(i, j int) bool {
		a, b := v.Categories[i], v.Categories[j]
		if a.Tested != b.Tested {
			return a.Tested
		}
		if a.Percentage != b.Percentage {
			return a.Percentage > b.Percentage
		}
		return a.Category < b.Category
	})
	return v
}

// Markdown renders the statistics view.
func (s Stats) Markdown() string {
	if s.Empty {
		return "# Statistics\n\nNo practice sessions yet. Complete a practice or exam session to start tracking your progress.\n"
	}
	var b strings.Builder
	b.WriteString("# Statistics\n\n")
	fmt.Fprintf(&b, "| Attempts | Passed | Pass Rate |\n|---|---|---|\n| %d | %d | %g%% |\n\n", s.TotalAttempts, s.Passed, s.PassRate)
	if len(s.WeakAreas) > 0 {
		fmt.Fprintf(&b, "**Focus Areas:** practice these categories to improve: %s\n\n", strings.Join(s.WeakAreas, ", "))
	}
	if len(s.Categories) == 0 {
		b.WriteString("No data yet.\n")
		return b.String()
	}
	b.WriteString("| Category | Score |\n|---|---|\n")
	for _, c := range s.Categories {
		if !c.Tested {
			fmt.Fprintf(&b, "| %s | Not tested |\n", c.Label)
			continue
		}
		fmt.Fprintf(&b, "| %s | %d%% (%s) |\n", c.Label, c.Percentage, c.Grade)
	}
	return b.String()
}
