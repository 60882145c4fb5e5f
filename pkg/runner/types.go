package runner

import "github.com/ormasoftchile/sprocket/pkg/report"

// Test outcomes as reported in TestResult.Status.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// TestResult captures the outcome of running one test definition.
type TestResult struct {
	Name       string       `json:"name"`
	Source     string       `json:"source,omitempty"`
	Status     string       `json:"status"` // passed, failed, skipped, error
	DurationMs int64        `json:"duration_ms"`
	Report     *report.Node `json:"report,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Passed reports whether the test passed.
func (r *TestResult) Passed() bool {
	return r.Status == StatusPassed
}

// Summary aggregates results across tests.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// OK reports whether every executed test passed.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errors == 0
}

func (s *Summary) add(status string) {
	switch status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Errors++
	}
	s.Total++
}

// RunOutput is the top-level JSON structure for sprocket run --format json.
type RunOutput struct {
	RunID   string        `json:"run_id"`
	Results []*TestResult `json:"results"`
	Summary Summary       `json:"summary"`
}
