package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// Observer receives one record per store call. result is "ok", "error" or
// "not_found".
type Observer interface {
	ObserveStore(op, result string, elapsed time.Duration)
}

type instrumented struct {
	next ports.SessionStore
	obs  Observer
	now  func() time.Time
}

// Instrument reports every store call to obs.
func Instrument(obs Observer) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &instrumented{next: next, obs: obs, now: time.Now}
	}
}

func (m *instrumented) record(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.obs.ObserveStore(op, result, m.now().Sub(start))
}

func (m *instrumented) Save(ctx context.Context, key string, snap *domain.Snapshot) error {
	start := m.now()
	err := m.next.Save(ctx, key, snap)
	m.record("save", start, err)
	return err
}

func (m *instrumented) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	start := m.now()
	snap, err := m.next.Load(ctx, key)
	m.record("load", start, err)
	return snap, err
}

func (m *instrumented) Delete(ctx context.Context, key string) error {
	start := m.now()
	err := m.next.Delete(ctx, key)
	m.record("delete", start, err)
	return err
}

func (m *instrumented) List(ctx context.Context) ([]string, error) {
	start := m.now()
	keys, err := m.next.List(ctx)
	m.record("list", start, err)
	return keys, err
}
