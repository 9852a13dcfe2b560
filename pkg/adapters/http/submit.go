package http

import (
	"net/http"
	"sync"

	"github.com/aretw0/labexam/pkg/grading"
)

// submission tracks the one background grading run the API allows.
type submission struct {
	mu      sync.Mutex
	token   *grading.Token
	running bool
	done    chan struct{}
	outcome *grading.Outcome
	err     string
}

func (sub *submission) begin() (*grading.Token, chan struct{}, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.running {
		return nil, nil, false
	}
	sub.running = true
	sub.token = grading.NewToken()
	sub.done = make(chan struct{})
	sub.outcome = nil
	sub.err = ""
	return sub.token, sub.done, true
}

func (sub *submission) end(out *grading.Outcome, err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.running = false
	sub.outcome = out
	if err != nil {
		sub.err = err.Error()
	}
	close(sub.done)
}

func (sub *submission) cancel() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.running {
		return false
	}
	sub.token.Cancel()
	return true
}

// Wait blocks until the current run, if any, has finished.
func (sub *submission) wait() {
	sub.mu.Lock()
	done := sub.done
	sub.mu.Unlock()
	if done != nil {
		<-done
	}
}

// submissionView is the GET /submit payload.
type submissionView struct {
	Running  bool              `json:"running"`
	Progress *grading.Progress `json:"progress,omitempty"`
	Outcome  *grading.Outcome  `json:"outcome,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) submissionStatus() submissionView {
	s.run.mu.Lock()
	v := submissionView{Running: s.run.running, Outcome: s.run.outcome, Error: s.run.err}
	s.run.mu.Unlock()
	if s.tracker != nil {
		p := s.tracker.Current()
		v.Progress = &p
	}
	return v
}

// Wait blocks until a background submission started through the API has
// finished.
func (s *Server) Wait() { s.run.wait() }

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.submissionStatus())
}

func (s *Server) startSubmission(w http.ResponseWriter, r *http.Request) {
	if !s.bench.State().Active() {
		writeJSON(w, http.StatusConflict, errorBody{Error: "no active session"})
		return
	}
	token, _, ok := s.run.begin()
	if !ok {
		writeJSON(w, http.StatusConflict, errorBody{Error: "grading already in progress"})
		return
	}

	go func() {
		out, err := s.bench.Submit(s.baseCtx, token)
		if err != nil {
			s.logger.Warn("background submission failed", "error", err)
		}
		s.run.end(out, err)
		if out != nil {
			s.publish(TopicOutcome, out)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) cancelSubmission(w http.ResponseWriter, r *http.Request) {
	if !s.run.cancel() {
		writeJSON(w, http.StatusConflict, errorBody{Error: "no grading in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
