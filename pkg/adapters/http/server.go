// Package http exposes a running workbench over a small JSON control API
// with server-sent events for live session and grading updates.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/catalog"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Bench is the part of the workbench the control API drives.
type Bench interface {
	Readiness(ctx context.Context) readiness.Result
	State() *session.State
	Catalog() *catalog.Cache
	Collapse() *projector.Collapse
	Sidebar(search string) projector.View
	Remaining() (time.Duration, bool)
	StartPractice(ctx context.Context, ids []string) error
	StartCategory(ctx context.Context, category string) error
	StartExam(ctx context.Context, count int) error
	Resume(ctx context.Context) (*domain.Snapshot, error)
	Discard(ctx context.Context) error
	GradeTask(ctx context.Context, taskID string, target domain.Target) (grading.SingleResult, error)
	Submit(ctx context.Context, token *grading.Token) (*grading.Outcome, error)
	Reboot(ctx context.Context, target domain.Target) []grading.NodeOutcome
}

var _ Bench = (*labexam.Workbench)(nil)

// RequestObserver records served requests by route pattern.
type RequestObserver interface {
	ObserveRequest(route string, code int)
}

// Server is the control API.
type Server struct {
	bench    Bench
	streams  *StreamManager
	tracker  *grading.Tracker
	observer RequestObserver
	metrics  http.Handler
	logger   *slog.Logger
	baseCtx  context.Context

	run submission

	unsubscribe []func()
	closeOnce   sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracker publishes grading progress from t on /events and /submit.
// The tracker's hooks must be installed on the workbench grader.
func WithTracker(t *grading.Tracker) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

// WithObserver counts requests.
func WithObserver(o RequestObserver) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithBaseContext sets the context background grading runs derive from.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// New creates a server and subscribes it to session changes.
// Call Close to detach it.
func New(bench Bench, opts ...Option) *Server {
	s := &Server{
		bench:   bench,
		logger:  logging.NewNop(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)

	s.unsubscribe = append(s.unsubscribe, bench.State().Subscribe(func(ev domain.ChangeEvent) {
		s.publish(TopicSession, ev)
	}))
	if s.tracker != nil {
		s.unsubscribe = append(s.unsubscribe, s.tracker.Subscribe(func(p grading.Progress) {
			s.publish(TopicGrading, p)
		}))
	}
	return s
}

// NewHandler is New(bench, opts...).Handler().
func NewHandler(bench Bench, opts ...Option) http.Handler {
	return New(bench, opts...).Handler()
}

// Close detaches the server from the workbench and cancels a running
// submission.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		for _, fn := range s.unsubscribe {
			fn()
		}
		s.run.cancel()
	})
}

// Streams returns the SSE fan-out.
func (s *Server) Streams() *StreamManager { return s.streams }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/readiness", s.getReadiness)
	r.Get("/tasks", s.listTasks)
	r.Get("/categories", s.listCategories)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Post("/", s.startSession)
		r.Delete("/", s.deleteSession)
		r.Post("/resume", s.resumeSession)
		r.Post("/navigate", s.navigate)
		r.Post("/select", s.selectTask)
		r.Post("/sort", s.toggleSort)
		r.Post("/collapse", s.toggleCollapse)
	})
	r.Get("/sidebar", s.getSidebar)
	r.Post("/tasks/{id}/grade", s.gradeTask)

	r.Route("/submit", func(r chi.Router) {
		r.Get("/", s.getSubmission)
		r.Post("/", s.startSubmission)
		r.Delete("/", s.cancelSubmission)
	})
	r.Post("/reboot", s.reboot)
	r.Get("/events", s.subscribeEvents)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		if s.observer != nil {
			s.observer.ObserveRequest(route, code)
		}
		s.logger.Debug("request served",
			"method", r.Method,
			"route", route,
			"code", code,
			"elapsed", time.Since(start),
		)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) publish(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("sse payload encode failed", "topic", topic, "err", err)
		return
	}
	s.streams.Broadcast(topic, string(b))
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error  string           `json:"error"`
	Reason readiness.Reason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("response encode failed", "error", err)
	}
}

// writeError maps workbench errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	code := http.StatusBadGateway

	var notReady *labexam.NotReadyError
	switch {
	case errors.As(err, &notReady):
		code = http.StatusPreconditionFailed
		body.Reason = notReady.Result.Reason
		body.Error = notReady.Result.Message()
	case errors.Is(err, domain.ErrNoTasks):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownTask), errors.Is(err, domain.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrGradingInProgress):
		code = http.StatusConflict
	default:
		s.logger.Warn("request failed", "err", err)
	}
	writeJSON(w, code, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func parseTarget(raw string) (domain.Target, bool) {
	t := domain.Target(strings.ToLower(strings.TrimSpace(raw)))
	if t == "" || t.Valid() {
		return t, true
	}
	return "", false
}
