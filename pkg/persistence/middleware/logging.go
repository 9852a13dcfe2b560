package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

type logged struct {
	next   ports.SessionStore
	logger *slog.Logger
}

// Logging logs store failures at warn level and successful writes at debug.
// A missing session is not a failure.
func Logging(logger *slog.Logger) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &logged{next: next, logger: logger}
	}
}

func (m *logged) Save(ctx context.Context, key string, snap *domain.Snapshot) error {
	err := m.next.Save(ctx, key, snap)
	if err != nil {
		m.logger.Warn("session save failed", "key", key, "err", err)
		return err
	}
	m.logger.Debug("session saved", "key", key, "tasks", len(snap.SelectedTasks), "index", snap.CurrentTaskIndex)
	return nil
}

func (m *logged) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	snap, err := m.next.Load(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		m.logger.Warn("session load failed", "key", key, "err", err)
	}
	return snap, err
}

func (m *logged) Delete(ctx context.Context, key string) error {
	err := m.next.Delete(ctx, key)
	if err != nil {
		m.logger.Warn("session delete failed", "key", key, "err", err)
		return err
	}
	m.logger.Debug("session deleted", "key", key)
	return nil
}

func (m *logged) List(ctx context.Context) ([]string, error) {
	keys, err := m.next.List(ctx)
	if err != nil {
		m.logger.Warn("session list failed", "err", err)
	}
	return keys, err
}
