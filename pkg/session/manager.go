package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// keyLock is a per-key mutex shared by every caller working on that key.
type keyLock struct {
	sync.Mutex
	waiters int
}

// Manager guards the session store so a run key is never read and written
// at the same time, in this process and, with a locker, across processes.
type Manager struct {
	store ports.SessionStore

	mu   sync.Mutex
	keys map[string]*keyLock

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		keys:    make(map[string]*keyLock),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockKey blocks until the local lock for key is held. The returned func
// releases it and forgets the key once nobody else waits on it.
func (m *Manager) lockKey(key string) func() {
	m.mu.Lock()
	kl, ok := m.keys[key]
	if !ok {
		kl = &keyLock{}
		m.keys[key] = kl
	}
	kl.waiters++
	m.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		m.mu.Lock()
		if kl.waiters--; kl.waiters == 0 {
			delete(m.keys, key)
		}
		m.mu.Unlock()
	}
}

// Load retrieves a saved session from the store.
func (m *Manager) Load(ctx context.Context, key string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, key)
		return err
	})
	return snap, err
}

// Resumable returns the saved session under key if it can be resumed.
// It returns nil without error when nothing usable is stored. Empty and
// unreadable snapshots are discarded on the way.
func (m *Manager) Resumable(ctx context.Context, key string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		loaded, err := m.store.Load(ctx, key)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		if errors.Is(err, domain.ErrInvalidSnapshot) {
			m.logger.Warn("discarding unreadable saved session", "key", key, "err", err)
			m.discard(ctx, key)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load saved session: %w", err)
		}
		if len(loaded.SelectedTasks) == 0 {
			m.logger.Info("discarding empty saved session", "key", key)
			m.discard(ctx, key)
			return nil
		}
		snap = loaded
		return nil
	})
	return snap, err
}

func (m *Manager) discard(ctx context.Context, key string) {
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn("failed to discard saved session", "key", key, "err", err)
	}
}

// Save persists the session snapshot.
func (m *Manager) Save(ctx context.Context, key string, snap *domain.Snapshot) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Save(ctx, key, snap)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// WithLock runs fn while holding the lock for key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	defer m.lockKey(key)()

	if m.locker == nil {
		return fn(ctx)
	}
	unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire session lock %q: %w", key, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("session lock not released, it expires with its ttl", "key", key, "err", err)
		}
	}()
	return fn(ctx)
}
