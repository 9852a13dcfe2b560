package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/labexam"
	"github.com/aretw0/labexam/pkg/catalog"
	"github.com/aretw0/labexam/pkg/domain"
	"github.com/aretw0/labexam/pkg/grading"
	"github.com/aretw0/labexam/pkg/projector"
	"github.com/go-chi/chi/v5"
)

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "labexam",
		"version": strings.TrimSpace(labexam.Version),
	})
}

type readinessResponse struct {
	Ready   bool   `json:"ready"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func (s *Server) getReadiness(w http.ResponseWriter, r *http.Request) {
	res := s.bench.Readiness(r.Context())
	writeJSON(w, http.StatusOK, readinessResponse{
		Ready:   res.Ready,
		Reason:  string(res.Reason),
		Message: res.Message(),
	})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.bench.Catalog().All(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, catalog.Filter(tasks, catalog.Query{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Sort:     catalog.SortOrder(q.Get("sort")),
	}))
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.bench.Catalog().Categories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// sessionView is the GET /session payload.
type sessionView struct {
	Active           bool                         `json:"active"`
	Mode             domain.Mode                  `json:"mode,omitempty"`
	Index            int                          `json:"index"`
	Current          *domain.Task                 `json:"current,omitempty"`
	Tasks            []domain.Task                `json:"tasks"`
	Results          map[string]domain.TaskResult `json:"results"`
	Progress         projector.ProgressView       `json:"progress"`
	Nav              projector.Nav                `json:"nav"`
	RandomSort       bool                         `json:"random_sort"`
	RemainingSeconds *int64                       `json:"remaining_seconds,omitempty"`
}

func (s *Server) currentSession() sessionView {
	st := s.bench.State()
	tasks := st.Tasks()
	v := sessionView{
		Active:     st.Active(),
		Index:      st.Index(),
		Tasks:      tasks,
		Results:    st.Results(),
		Progress:   projector.Progress(st.GradedCount(), len(tasks)),
		Nav:        projector.Navigation(len(tasks), st.Index()),
		RandomSort: st.RandomSort(),
	}
	if v.Tasks == nil {
		v.Tasks = []domain.Task{}
	}
	if v.Active {
		v.Mode = st.Mode()
	}
	if t, ok := st.Current(); ok {
		v.Current = &t
	}
	if left, ok := s.bench.Remaining(); ok {
		secs := int64(left.Seconds())
		v.RemainingSeconds = &secs
	}
	return v
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSession())
}

// startRequest is the POST /session body.
type startRequest struct {
	// Kind is practice, category or exam.
	Kind     string   `json:"kind"`
	IDs      []string `json:"ids,omitempty"`
	Category string   `json:"category,omitempty"`
	Count    int      `json:"count,omitempty"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	var err error
	switch req.Kind {
	case "practice":
		err = s.bench.StartPractice(ctx, req.IDs)
	case "category":
		err = s.bench.StartCategory(ctx, req.Category)
	case "exam":
		err = s.bench.StartExam(ctx, req.Count)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown kind %q", req.Kind)})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.currentSession())
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bench.Resume(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentSession())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.bench.Discard(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !s.bench.State().Active() {
		s.writeError(w, domain.ErrNoSession)
		return
	}
	s.bench.State().Navigate(r.Context(), req.Delta)
	writeJSON(w, http.StatusOK, s.currentSession())
}

func (s *Server) selectTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index *int   `json:"index,omitempty"`
		ID    string `json:"id,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	st := s.bench.State()
	if !st.Active() {
		s.writeError(w, domain.ErrNoSession)
		return
	}
	var ok bool
	switch {
	case req.ID != "":
		ok = st.SelectID(r.Context(), req.ID)
	case req.Index != nil:
		ok = st.Select(r.Context(), *req.Index)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "index or id required"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such task in the current run"})
		return
	}
	writeJSON(w, http.StatusOK, s.currentSession())
}

func (s *Server) toggleSort(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bench.State().ToggleSortMode(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentSession())
}

func (s *Server) toggleCollapse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	c := s.bench.Collapse()
	var collapsed bool
	if req.Category == "" {
		collapsed = c.ToggleAll(projector.Categories(s.bench.State().Tasks()))
	} else {
		collapsed = c.Toggle(req.Category)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"collapsed": collapsed})
}

func (s *Server) getSidebar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bench.Sidebar(r.URL.Query().Get("search")))
}

func (s *Server) gradeTask(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(r.URL.Query().Get("target"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "target must be node1, node2 or both"})
		return
	}
	res, err := s.bench.GradeTask(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	code := http.StatusOK
	switch res.Status {
	case grading.SingleNotReady:
		code = http.StatusPreconditionFailed
	case grading.SingleTransport:
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res)
}

func (s *Server) reboot(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(r.URL.Query().Get("target"))
	if !ok || target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "target must be node1, node2 or both"})
		return
	}
	nodes := s.bench.Reboot(r.Context(), target)
	code := http.StatusOK
	if !grading.AllOK(nodes) {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, nodes)
}

func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("sse streaming not supported")
		return
	}

	var topics []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, t := range strings.Split(watch, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}
	ch, cancel := s.streams.Subscribe(topics...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("sse client connected", "topics", strings.Join(topics, ","))

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, msg.Data)
			flusher.Flush()
		}
	}
}
