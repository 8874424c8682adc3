package domain

import "time"

// Status represents the execution state of a run, job, or step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. A terminal status never
// changes for the remainder of the run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// Step is a single unit of work within a job: either a shell command (Run)
// or a named external action (Uses). Exactly one of the two is set.
type Step struct {
	Name            string
	Run             string
	Uses            string
	With            map[string]string
	Env             map[string]string
	Secrets         []string
	If              string
	ContinueOnError bool
	Timeout         time.Duration
	Retries         int
}

// IsAction reports whether the step invokes a named external action
// rather than a shell command.
func (s Step) IsAction() bool {
	return s.Uses != ""
}

// Job is a named unit of work composed of ordered steps, gated by
// dependencies on other jobs.
type Job struct {
	Name   string
	Needs  []string
	RunsOn string
	Env    map[string]string
	Steps  []Step
}

// TriggerRule matches one event type against a set of branch patterns.
// An empty Branches list matches any branch.
type TriggerRule struct {
	Event    EventType
	Branches []string
}

// Pipeline is the top-level definition: named jobs, trigger rules, and
// global defaults. It is immutable once loaded for a given run.
type Pipeline struct {
	Name string
	On   []TriggerRule
	Env  map[string]string
	Jobs []Job
}

// Job returns the job with the given name, or false if none exists.
func (p Pipeline) Job(name string) (Job, bool) {
	for _, j := range p.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}
