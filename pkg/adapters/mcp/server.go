// Package mcp exposes the workbench to MCP clients: read the run, list and
// grade tasks, submit, and read the learner statistics.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/internal/logging"
	"github.com/aretw0/labexam/pkg/catalog"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/ports"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/aretw0/labexam/pkg/readiness"
	"github.com/aretw0/labexam/pkg/report"
	"github.com/aretw0/labexam/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionURI is the resource holding the current run.
const SessionURI = "labexam://session"

// Bench is the part of the workbench the MCP server drives.
type Bench interface {
	API() ports.LabAPI
	Readiness(ctx context.Context) readiness.Result
	State() *session.State
	Catalog() *catalog.Cache
	Remaining() (time.Duration, bool)
	StartPractice(ctx context.Context, ids []string) error
	StartCategory(ctx context.Context, category string) error
	GradeTask(ctx context.Context, taskID string, target domain.Target) (grading.SingleResult, error)
	Submit(ctx context.Context, token *grading.Token) (*grading.Outcome, error)
}

var _ Bench = (*labexam.Workbench)(nil)

// ReadinessResponse is the check_readiness result.
type ReadinessResponse struct {
	Ready   bool   `json:"ready" jsonschema_description:"True when both VMs are configured and reachable"`
	Reason  string `json:"reason,omitempty" jsonschema_description:"config, connection or error when not ready"`
	Message string `json:"message" jsonschema_description:"Human explanation"`
}

// TasksResponse is the list_tasks result.
type TasksResponse struct {
	Tasks []domain.Task `json:"tasks" jsonschema_description:"Matching catalog tasks"`
}

// SessionResponse describes the current run.
type SessionResponse struct {
	Active           bool                         `json:"active" jsonschema_description:"Whether a run is in progress"`
	Mode             domain.Mode                  `json:"mode,omitempty" jsonschema_description:"practice or exam"`
	Index            int                          `json:"index" jsonschema_description:"Cursor position"`
	Current          *domain.Task                 `json:"current,omitempty" jsonschema_description:"Task under the cursor"`
	Tasks            []domain.Task                `json:"tasks" jsonschema_description:"Selected tasks in run order"`
	Results          map[string]domain.TaskResult `json:"results" jsonschema_description:"Latest result per task id"`
	Graded           int                          `json:"graded"`
	RemainingSeconds *int64                       `json:"remaining_seconds,omitempty" jsonschema_description:"Time left in a timed exam"`
}

// SubmitResponse is the submit result.
type SubmitResponse struct {
	Phase   grading.Phase `json:"phase" jsonschema_description:"Terminal phase of the run"`
	Message string        `json:"message"`
	Score   int           `json:"score"`
	Total   int           `json:"total"`
	Percent int           `json:"percent"`
	Passed  bool          `json:"passed"`
}

// Server wraps the workbench as an MCP server.
type Server struct {
	bench     Bench
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. Never log to stdout under stdio.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the MCP server and registers its tools.
func NewServer(bench Bench, opts ...Option) *Server {
	s := &Server{
		bench:     bench,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("labexam-mcp", strings.TrimSpace(labexam.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("check_readiness",
		mcp.WithDescription("Check that both lab VMs are configured and reachable."),
		mcp.WithOutputSchema[ReadinessResponse](),
	), mcp.NewStructuredToolHandler(s.handleReadiness))

	s.mcpServer.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List catalog tasks, optionally filtered."),
		mcp.WithString("category", mcp.Description("Only tasks of this category")),
		mcp.WithString("search", mcp.Description("Case-insensitive match on id and description")),
		mcp.WithString("sort", mcp.Description("id (default) or category")),
		mcp.WithOutputSchema[TasksResponse](),
	), mcp.NewStructuredToolHandler(s.handleListTasks))

	s.mcpServer.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Describe the current practice or exam run."),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleSessionStatus))

	s.mcpServer.AddTool(mcp.NewTool("start_practice",
		mcp.WithDescription("Start an untimed practice run over task ids or a whole category."),
		mcp.WithString("ids", mcp.Description("Comma-separated task ids")),
		mcp.WithString("category", mcp.Description("Category to practice when ids is empty")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartPractice))

	s.mcpServer.AddTool(mcp.NewTool("grade_task",
		mcp.WithDescription("Grade one task of the current run."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("target", mcp.Description("node1, node2 or both; defaults to the task target")),
		mcp.WithOutputSchema[grading.SingleResult](),
	), mcp.NewStructuredToolHandler(s.handleGradeTask))

	s.mcpServer.AddTool(mcp.NewTool("submit",
		mcp.WithDescription("Reboot both VMs, grade every task of the run and record the result."),
		mcp.WithOutputSchema[SubmitResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("stats",
		mcp.WithDescription("Show historical results as Markdown."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := s.bench.API().Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		return mcp.NewToolResultText(report.StatsView(st).Markdown()), nil
	})
}

func (s *Server) handleReadiness(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ReadinessResponse, error) {
	res := s.bench.Readiness(ctx)
	return ReadinessResponse{Ready: res.Ready, Reason: string(res.Reason), Message: res.Message()}, nil
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TasksResponse, error) {
	tasks, err := s.bench.Catalog().All(ctx)
	if err != nil {
		return TasksResponse{}, fmt.Errorf("load tasks: %w", err)
	}
	category, _ := args["category"].(string)
	search, _ := args["search"].(string)
	order, _ := args["sort"].(string)
	return TasksResponse{Tasks: catalog.Filter(tasks, catalog.Query{
		Category: category,
		Search:   search,
		Sort:     catalog.SortOrder(order),
	})}, nil
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	return s.status(), nil
}

func (s *Server) status() SessionResponse {
	st := s.bench.State()
	resp := SessionResponse{
		Active:  st.Active(),
		Index:   st.Index(),
		Tasks:   st.Tasks(),
		Results: st.Results(),
		Graded:  st.GradedCount(),
	}
	if resp.Tasks == nil {
		resp.Tasks = []domain.Task{}
	}
	if resp.Active {
		resp.Mode = st.Mode()
	}
	if t, ok := st.Current(); ok {
		resp.Current = &t
	}
	if left, ok := s.bench.Remaining(); ok {
		secs := int64(left.Seconds())
		resp.RemainingSeconds = &secs
	}
	return resp
}

func (s *Server) handleStartPractice(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	raw, _ := args["ids"].(string)
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	category, _ := args["category"].(string)

	var err error
	switch {
	case len(ids) > 0:
		err = s.bench.StartPractice(ctx, ids)
	case category != "":
		err = s.bench.StartCategory(ctx, category)
	default:
		return SessionResponse{}, errors.New("ids or category required")
	}
	if err != nil {
		return SessionResponse{}, fmt.Errorf("start practice: %w", err)
	}
	return s.status(), nil
}

func (s *Server) handleGradeTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (grading.SingleResult, error) {
	id, _ := args["task_id"].(string)
	if id == "" {
		return grading.SingleResult{}, errors.New("task_id is required")
	}
	raw, _ := args["target"].(string)
	target := domain.Target(strings.ToLower(strings.TrimSpace(raw)))
	if target != "" && !target.Valid() {
		return grading.SingleResult{}, fmt.Errorf("invalid target %q", raw)
	}
	return s.bench.GradeTask(ctx, id, target)
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SubmitResponse, error) {
	token := grading.NewToken()
	stop := context.AfterFunc(ctx, token.Cancel)
	defer stop()

	out, err := s.bench.Submit(ctx, token)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("submit: %w", err)
	}
	s.logger.Info("mcp submission finished", "phase", string(out.Phase), "score", out.Score, "total", out.Total)
	return SubmitResponse{
		Phase:   out.Phase,
		Message: out.Message,
		Score:   out.Score,
		Total:   out.Total,
		Percent: out.Percentage(),
		Passed:  out.Passed,
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SessionURI, "Current Run",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(s.status())
		if err != nil {
			return nil, fmt.Errorf("encode session: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SessionURI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource("labexam://sidebar", "Task Sidebar",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st := s.bench.State()
		view := projector.Sidebar(projector.Input{
			Tasks:   st.Tasks(),
			Results: st.Results(),
			Index:   st.Index(),
			Grouped: !st.RandomSort(),
		})
		b, err := json.Marshal(view)
		if err != nil {
			return nil, fmt.Errorf("encode sidebar: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "labexam://sidebar", MIMEType: "application/json", Text: string(b)},
		}, nil
	})
}
