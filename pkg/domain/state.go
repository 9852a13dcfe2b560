package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the persisted form of a session. It is the only source of
// continuity across restarts; there is no server-side session store.
type Snapshot struct {
	SelectedTasks    []Task        `json:"selectedTasks"`
	CurrentMode      Mode          `json:"currentMode"`
	CurrentTaskIndex int           `json:"currentTaskIndex"`
	TaskResults      []ResultEntry `json:"taskResults"`
	// Timestamp is the save time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// ExamStartTime is the timed-run start in Unix milliseconds, zero when untimed.
	ExamStartTime int64 `json:"examStartTime,omitempty"`
}

// GradedCount returns how many entries are marked as graded.
func (s *Snapshot) GradedCount() int {
	n := 0
	for _, e := range s.TaskResults {
		if e.Result.Graded {
			n++
		}
	}
	return n
}

// ResultEntry is one taskId → TaskResult pair. It serialises as a two-element
// JSON array so the stored document keeps the [[id, result], ...] layout.
type ResultEntry struct {
	TaskID string
	Result TaskResult
}

// MarshalJSON encodes the entry as [id, result].
func (e ResultEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.TaskID, e.Result})
}

// UnmarshalJSON decodes an [id, result] pair.
func (e *ResultEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("result entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("result entry: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.TaskID); err != nil {
		return fmt.Errorf("result entry id: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Result); err != nil {
		return fmt.Errorf("result entry value: %w", err)
	}
	if e.Result.TaskID == "" {
		e.Result.TaskID = e.TaskID
	}
	return nil
}
