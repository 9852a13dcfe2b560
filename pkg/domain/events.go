package domain

// ChangeKind identifies which session mutation produced a ChangeEvent.
type ChangeKind string

const (
	ChangeStarted   ChangeKind = "started"
	ChangeNavigated ChangeKind = "navigated"
	ChangeReordered ChangeKind = "reordered"
	ChangeResult    ChangeKind = "result"
	ChangeRestored  ChangeKind = "restored"
	ChangeCleared   ChangeKind = "cleared"
)

// ChangeEvent is emitted to observers after a session mutation completes.
type ChangeEvent struct {
	Kind ChangeKind `json:"kind"`
	// TaskID is set for result events and for cursor moves.
	TaskID string `json:"task_id,omitempty"`
	Index  int    `json:"index"`
}

// Observer receives session change notifications. Observers run on the
// goroutine that performed the mutation and must not block.
type Observer func(ChangeEvent)
