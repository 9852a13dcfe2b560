package domain

// VMConfig is the lab configuration as reported by the backend.
// The root password is never returned; HasPassword reports whether one is set.
type VMConfig struct {
	Node1       string `json:"node1"`
	Node1IP     string `json:"node1_ip"`
	Node2       string `json:"node2"`
	Node2IP     string `json:"node2_ip"`
	HasPassword bool   `json:"has_password"`
}

// Complete reports whether both node addresses and the password are configured.
func (c VMConfig) Complete() bool {
	return c.Node1IP != "" && c.Node2IP != "" && c.HasPassword
}

// ConfigUpdate is the body of a configuration save. An empty RootPassword
// leaves the stored password untouched.
type ConfigUpdate struct {
	Node1        string `json:"node1"`
	Node1IP      string `json:"node1_ip"`
	Node2        string `json:"node2"`
	Node2IP      string `json:"node2_ip"`
	RootPassword string `json:"root_password"`
}

// ConnectionStatus is the per-node reachability reported by a probe.
type ConnectionStatus struct {
	Node1 bool `json:"node1"`
	Node2 bool `json:"node2"`
}

// DiscoveredIPs is the result of backend IP discovery.
type DiscoveredIPs struct {
	Node1IP string `json:"node1_ip,omitempty"`
	Node2IP string `json:"node2_ip,omitempty"`
	Method  string `json:"method"`
}

// GradeResponse is the backend verdict for a single task. Error is set
// when the grader itself failed; Message then carries the detail.
type GradeResponse struct {
	Error        string   `json:"error,omitempty"`
	Message      string   `json:"message,omitempty"`
	Passed       bool     `json:"passed"`
	Points       int      `json:"points"`
	MaxPoints    int      `json:"max_points"`
	ChecksPassed int      `json:"checks_passed"`
	ChecksTotal  int      `json:"checks_total"`
	Details      []string `json:"details,omitempty"`
}

// Failed reports whether the backend could not grade the task.
func (r *GradeResponse) Failed() bool { return r.Error != "" }

// ErrorText is the most specific description of a grader failure.
func (r *GradeResponse) ErrorText() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// RebootResponse is the outcome of a single node reboot.
type RebootResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// CheckResult is one per-task line of a submitted run.
type CheckResult struct {
	Task     string `json:"task"`
	Check    string `json:"check"`
	Category string `json:"category"`
	Passed   bool   `json:"passed"`
	// Points is the task's maximum points, zero when grading failed.
	Points int `json:"points"`
}

// CategoryScore aggregates earned and possible points of a category.
type CategoryScore struct {
	Earned   int `json:"earned"`
	Possible int `json:"possible"`
}

// ResultSubmission is the aggregate result persisted by the backend.
type ResultSubmission struct {
	Score           int                      `json:"score"`
	Total           int                      `json:"total"`
	Passed          bool                     `json:"passed"`
	Checks          []CheckResult            `json:"checks"`
	Categories      map[string]CategoryScore `json:"categories"`
	Mode            Mode                     `json:"mode"`
	DurationSeconds *int64                   `json:"duration_seconds"`
}

// ClearResponse is returned when the result history is deleted.
type ClearResponse struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
}

// WeakArea is a category the backend recommends practising.
type WeakArea struct {
	Category   string `json:"category"`
	Percentage int    `json:"percentage"`
}

// CategoryStat is the historical score of a category.
type CategoryStat struct {
	Tested     bool `json:"tested"`
	Percentage int  `json:"percentage"`
}

// Stats is the historical summary across all submitted runs.
type Stats struct {
	TotalAttempts int                     `json:"total_attempts"`
	Passed        int                     `json:"passed"`
	PassRate      float64                 `json:"pass_rate"`
	WeakAreas     []WeakArea              `json:"weak_areas"`
	Categories    map[string]CategoryStat `json:"categories"`
}
