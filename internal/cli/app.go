// Package cli wires settings into a running workbench and implements the
// actions behind the labexam commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/internal/config"
	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/internal/metrics"
	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/adapters/file"
	"github.com/aretw0/labexam/pkg/adapters/labapi"
	"github.com/aretw0/labexam/pkg/adapters/memory"
	"github.com/aretw0/labexam/pkg/adapters/redis"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/persistence/middleware"
	"github.com/aretw0/labexam/pkg/ports"
)

// App is one configured labexam process.
type App struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	API      ports.LabAPI
	Store    ports.SessionStore
	Tracker  *grading.Tracker
	Bench    *labexam.Workbench

	In      io.Reader
	Out     io.Writer
	Palette tui.Palette
	Render  tui.Renderer

	// Quiet suppresses grading progress lines.
	Quiet bool

	locker      ports.DistributedLocker
	gradingOpts []grading.Option
	closers     []io.Closer
	now         func() time.Time
}

// AppOption configures NewApp.
type AppOption func(*App)

// WithLabAPI replaces the HTTP backend client.
func WithLabAPI(api ports.LabAPI) AppOption {
	return func(a *App) {
		a.API = api
	}
}

// WithStore replaces the store selected by the settings.
func WithStore(store ports.SessionStore) AppOption {
	return func(a *App) {
		a.Store = store
	}
}

// WithIO sets the input and output streams.
func WithIO(in io.Reader, out io.Writer) AppOption {
	return func(a *App) {
		a.In = in
		a.Out = out
	}
}

// WithPalette sets the colour palette.
func WithPalette(p tui.Palette) AppOption {
	return func(a *App) {
		a.Palette = p
	}
}

// WithRenderer sets the Markdown renderer.
func WithRenderer(r tui.Renderer) AppOption {
	return func(a *App) {
		a.Render = r
	}
}

// WithAppLogger replaces the logger derived from the settings.
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.Logger = logger
	}
}

// WithAppClock replaces time.Now.
func WithAppClock(now func() time.Time) AppOption {
	return func(a *App) {
		a.now = now
	}
}

// WithGradingOptions appends orchestrator options after the ones derived
// from the settings, so they take precedence.
func WithGradingOptions(opts ...grading.Option) AppOption {
	return func(a *App) {
		a.gradingOpts = append(a.gradingOpts, opts...)
	}
}

// NewApp builds the logger, store, backend client and workbench described by s.
func NewApp(ctx context.Context, s *config.Settings, opts ...AppOption) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		Settings: s,
		Metrics:  metrics.New(),
		Tracker:  grading.NewTracker(),
		In:       os.Stdin,
		Out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Logger == nil {
		logger, err := NewLogger(s.Log)
		if err != nil {
			return nil, err
		}
		a.Logger = logger
	}
	if a.Render == nil {
		a.Render = tui.NewRenderer(100)
	}
	if a.Palette == (tui.Palette{}) {
		a.Palette = tui.NewPalette(a.Out)
	}
	// grading hooks print from worker goroutines
	a.Out = &syncWriter{w: a.Out}

	if a.Store == nil {
		store, locker, closer, err := OpenStore(ctx, s)
		if err != nil {
			return nil, err
		}
		a.Store, a.locker = store, locker
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	a.Store = middleware.Chain(a.Store,
		middleware.Logging(a.Logger),
		middleware.Instrument(a.Metrics),
	)

	if a.API == nil {
		a.API = labapi.New(s.APIURL,
			labapi.WithLogger(a.Logger),
			labapi.WithTimeouts(s.Timeouts.Request, s.Timeouts.Reboot, s.Timeouts.Grade),
		)
	}

	hooks := a.Tracker.Hooks().
		Merge(a.Metrics.GradingHooks()).
		Merge(a.progressHooks())

	benchOpts := []labexam.Option{
		labexam.WithLogger(a.Logger),
		labexam.WithSessionKey(s.SessionKey),
		labexam.WithExam(s.Exam.Tasks, s.Exam.Duration),
		labexam.WithClock(a.now),
		labexam.WithGradingOptions(append([]grading.Option{
			grading.WithSettle(s.Grading.Settle),
			grading.WithConcurrency(s.Grading.Concurrency),
			grading.WithHooks(hooks),
		}, a.gradingOpts...)...),
	}
	if a.locker != nil {
		benchOpts = append(benchOpts, labexam.WithLocker(a.locker))
	}
	a.Bench = labexam.New(a.API, a.Store, benchOpts...)

	a.Logger.Debug("app ready",
		"api_url", s.APIURL,
		"store", string(s.Store),
		"session_key", s.SessionKey,
	)
	return a, nil
}

// Close releases the store connection.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the log settings.
func NewLogger(l config.Log) (*slog.Logger, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(level, logging.Format(l.Format)), nil
}

// OpenStore creates the session store selected by s. The redis store also
// returns a distributed locker and a closer for its client.
func OpenStore(ctx context.Context, s *config.Settings) (ports.SessionStore, ports.DistributedLocker, io.Closer, error) {
	switch s.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil, nil, nil
	case config.StoreRedis:
		opts := []redis.Option{redis.WithPrefix(s.Redis.Prefix)}
		if s.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(s.Redis.TTL))
		}
		store := redis.New(s.Redis.Addr, s.Redis.Password, s.Redis.DB, opts...)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, nil, nil, fmt.Errorf("redis %s: %w", s.Redis.Addr, err)
		}
		return store, redis.NewLocker(store.Client(), store.Prefix()), store, nil
	case config.StoreFile, "":
		return file.New(s.SessionDir), nil, nil, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalid, s.Store)
}
