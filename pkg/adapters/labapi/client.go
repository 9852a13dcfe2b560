// Package labapi is the HTTP/JSON client of the lab grading backend.
package labapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/ports"
)

// Default per-call timeouts. A reboot waits for the node to come back, so it
// gets the longest budget.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultRebootTimeout  = 5 * time.Minute
	DefaultGradeTimeout   = 2 * time.Minute
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client implements ports.LabAPI over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	requestTimeout time.Duration
	rebootTimeout  time.Duration
	gradeTimeout   time.Duration
}

var _ ports.LabAPI = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeouts overrides the per-call timeouts. Zero values keep the default.
func WithTimeouts(request, reboot, grade time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.requestTimeout = request
		}
		if reboot > 0 {
			c.rebootTimeout = reboot
		}
		if grade > 0 {
			c.gradeTimeout = grade
		}
	}
}

// New creates a client for the backend at baseURL (e.g. "http://localhost:8000").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		logger:         logging.NewNop(),
		requestTimeout: DefaultRequestTimeout,
		rebootTimeout:  DefaultRebootTimeout,
		gradeTimeout:   DefaultGradeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend response", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) GetConfig(ctx context.Context) (*domain.VMConfig, error) {
	var cfg domain.VMConfig
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) SaveConfig(ctx context.Context, update domain.ConfigUpdate) error {
	return c.do(ctx, c.requestTimeout, http.MethodPost, "/api/config", update, nil)
}

func (c *Client) TestConnection(ctx context.Context) (*domain.ConnectionStatus, error) {
	var st domain.ConnectionStatus
	if err := c.do(ctx, c.requestTimeout, http.MethodPost, "/api/test-connection", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) TestNode(ctx context.Context, node domain.Target) (bool, error) {
	var raw map[string]bool
	body := map[string]string{"target": string(node)}
	if err := c.do(ctx, c.requestTimeout, http.MethodPost, "/api/test-connection", body, &raw); err != nil {
		return false, err
	}
	return raw[string(node)], nil
}

func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) RandomTasks(ctx context.Context, count int) ([]domain.Task, error) {
	var tasks []domain.Task
	path := "/api/random-tasks?count=" + strconv.Itoa(count)
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Grade grades one task. An empty target lets the backend use the task default.
// A non-2xx answer whose body is a grading error is returned as a response.
func (c *Client) Grade(ctx context.Context, taskID string, target domain.Target) (*domain.GradeResponse, error) {
	path := "/api/grade-task/" + url.PathEscape(taskID)
	if target != "" {
		path += "?target=" + url.QueryEscape(string(target))
	}

	var out domain.GradeResponse
	err := c.do(ctx, c.gradeTimeout, http.MethodPost, path, nil, &out)
	var se *StatusError
	if errors.As(err, &se) {
		var body domain.GradeResponse
		if json.Unmarshal([]byte(se.Body), &body) == nil && body.Failed() {
			return &body, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reboot(ctx context.Context, node domain.Target) (*domain.RebootResponse, error) {
	var out domain.RebootResponse
	body := map[string]string{"node": string(node)}
	if err := c.do(ctx, c.rebootTimeout, http.MethodPost, "/api/reboot-vm", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitResults(ctx context.Context, sub domain.ResultSubmission) error {
	return c.do(ctx, c.requestTimeout, http.MethodPost, "/api/results", sub, nil)
}

func (c *Client) ClearResults(ctx context.Context) (*domain.ClearResponse, error) {
	var out domain.ClearResponse
	if err := c.do(ctx, c.requestTimeout, http.MethodDelete, "/api/results", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DiscoverIPs(ctx context.Context) (*domain.DiscoveredIPs, error) {
	var out domain.DiscoveredIPs
	if err := c.do(ctx, c.requestTimeout, http.MethodPost, "/api/discover-ips", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (*domain.Stats, error) {
	var out domain.Stats
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
