package session

import (
	"fmt"
	"time"

	"github.com/aretw0/labexam/pkg/domain"
)

// Describe summarises a saved session for the resume prompt, e.g.
// "Exam mode - 3/15 tasks graded - 2h ago".
func Describe(snap *domain.Snapshot, now time.Time) string {
	mode := domain.ModePractice
	if snap.CurrentMode == domain.ModeExam {
		mode = domain.ModeExam
	}
	return fmt.Sprintf("%s mode - %d/%d tasks graded - %s",
		mode.Label(), snap.GradedCount(), len(snap.SelectedTasks), TimeAgo(snap.Timestamp, now))
}

// TimeAgo renders a Unix millisecond timestamp relative to now.
func TimeAgo(timestamp int64, now time.Time) string {
	seconds := (now.UnixMilli() - timestamp) / 1000
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	}
	return fmt.Sprintf("%dd ago", seconds/86400)
}
