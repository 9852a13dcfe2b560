package ports

import (
	"context"

	"github.com/aretw0/labexam/pkg/domain"
)

// SessionStore defines the interface for persisting session snapshots.
// It is the only source of continuity across process restarts.
type SessionStore interface {
	// Save persists the snapshot under the given key, replacing any previous value.
	Save(ctx context.Context, key string, snap *domain.Snapshot) error

	// Load retrieves the snapshot stored under key.
	// Returns domain.ErrSessionNotFound if nothing is stored.
	Load(ctx context.Context, key string) (*domain.Snapshot, error)

	// Delete removes the stored snapshot. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}
