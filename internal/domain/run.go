package domain

import "time"

// StepResult records the outcome of one executed step. Output holds the
// captured combined stdout/stderr with all known secret values redacted.
type StepResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// JobResult records the terminal outcome of one job and its steps.
// Warnings is set when a step failed but was tolerated via
// continue-on-error under the warn policy.
type JobResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Warnings bool          `json:"warnings,omitempty"`
	Steps    []StepResult  `json:"steps,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Run is one execution instance of a pipeline for one triggering event.
// It owns the status of every job and step; no two runs share state.
type Run struct {
	ID         string      `json:"id"`
	Pipeline   string      `json:"pipeline"`
	Event      Event       `json:"event"`
	Status     Status      `json:"status"`
	Jobs       []JobResult `json:"jobs"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Job returns the result for the named job, or false if the run has none.
func (r *Run) Job(name string) (JobResult, bool) {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobResult{}, false
}

// Duration returns the total wall-clock duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
