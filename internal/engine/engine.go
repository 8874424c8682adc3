// Package engine orchestrates pipeline runs: it evaluates the trigger,
// walks the dependency graph, dispatches ready jobs up to the concurrency
// limit, and aggregates the final run outcome.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/waabox/conveyor/internal/config"
	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/logging"
	"github.com/waabox/conveyor/internal/pipeline"
	"github.com/waabox/conveyor/internal/runner"
	"github.com/waabox/conveyor/internal/secrets"
	"github.com/waabox/conveyor/internal/trigger"
)

// EventType identifies an engine lifecycle notification.
type EventType string

const (
	EventRunStarted  EventType = "run.started"
	EventJobStarted  EventType = "job.started"
	EventJobFinished EventType = "job.finished"
	EventRunFinished EventType = "run.finished"
)

// Event is one engine lifecycle notification. The live run view and the
// logger both consume these.
type Event struct {
	Type   EventType
	Run    string
	Job    string
	Status domain.Status
	Time   time.Time
}

// Engine executes pipelines. Run state is owned by the orchestration
// loop; job runners only ever mutate their own job's result.
type Engine struct {
	cfg    config.Config
	runner *runner.JobRunner
	// Notify, when set, receives lifecycle events. It is called from
	// the orchestration goroutine and from job goroutines; consumers
	// must be safe for that.
	Notify func(Event)
}

// New creates an engine. The runner's executor and secret provider are
// wired by the caller.
func New(cfg config.Config, r *runner.JobRunner) *Engine {
	return &Engine{cfg: cfg, runner: r}
}

// Run executes one pipeline for one triggering event.
//
// The trigger is evaluated first: a non-matching event returns
// ErrTriggerRejected and no run is created. A malformed pipeline (cyclic
// or dangling needs) returns a ConfigurationError before any job starts.
// Otherwise the returned run carries a terminal status for every job:
// succeeded, failed, skipped (a dependency failed), or cancelled.
func (e *Engine) Run(ctx context.Context, p *domain.Pipeline, ev domain.Event) (*domain.Run, error) {
	log := logging.FromContext(ctx)

	vars, err := trigger.Evaluate(p.On, ev)
	if err != nil {
		return nil, err
	}

	graph, err := pipeline.NewGraph(p.Jobs)
	if err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:        uuid.NewString(),
		Pipeline:  p.Name,
		Event:     ev,
		Status:    domain.StatusRunning,
		StartedAt: time.Now(),
	}
	log.Info("run started", "run", run.ID, "pipeline", p.Name, "event", ev.Type, "branch", ev.Branch)
	e.notify(Event{Type: EventRunStarted, Run: run.ID, Status: domain.StatusRunning, Time: time.Now()})

	statuses := make(map[string]domain.Status, len(p.Jobs))
	for _, job := range p.Jobs {
		statuses[job.Name] = domain.StatusPending
	}

	results := make(chan domain.JobResult)
	sem := make(chan struct{}, e.cfg.MaxConcurrency)
	red := secrets.NewRedactor()
	outcomes := make(map[string]domain.JobResult, len(p.Jobs))
	inFlight := 0

	record := func(result domain.JobResult) {
		statuses[result.Name] = result.Status
		outcomes[result.Name] = result
		e.notify(Event{Type: EventJobFinished, Run: run.ID, Job: result.Name, Status: result.Status, Time: time.Now()})
	}

	dispatch := func(name string) {
		statuses[name] = domain.StatusReady
		job, _ := p.Job(name)
		inFlight++
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				results <- cancelledResult(job)
				return
			}
			e.notify(Event{Type: EventJobStarted, Run: run.ID, Job: job.Name, Status: domain.StatusRunning, Time: time.Now()})
			results <- e.runner.Run(ctx, job, p.Env, vars, red)
		}()
	}

	cancelling := false
	for {
		if !cancelling && ctx.Err() != nil {
			cancelling = true
			log.Warn("cancellation requested, draining running jobs", "run", run.ID)
		}

		if cancelling {
			for _, name := range graph.Jobs() {
				if statuses[name] == domain.StatusPending {
					job, _ := p.Job(name)
					record(cancelledResult(job))
				}
			}
		} else {
			for _, name := range graph.Blocked(statuses) {
				job, _ := p.Job(name)
				log.Info("skipping job, dependency not satisfied", "run", run.ID, "job", name)
				record(skippedResult(job))
			}
			for _, name := range graph.Ready(statuses) {
				dispatch(name)
			}
		}

		if inFlight == 0 {
			break
		}

		// Event-driven wake-up: block until a running job reaches a
		// terminal state (or cancellation flips the loop into draining).
		if cancelling {
			result := <-results
			inFlight--
			record(result)
		} else {
			select {
			case result := <-results:
				inFlight--
				record(result)
			case <-ctx.Done():
			}
		}
	}

	for _, job := range p.Jobs {
		run.Jobs = append(run.Jobs, outcomes[job.Name])
	}
	run.Status = overallOutcome(run.Jobs)
	run.FinishedAt = time.Now()

	log.Info("run finished", "run", run.ID, "status", run.Status, "duration", run.Duration())
	e.notify(Event{Type: EventRunFinished, Run: run.ID, Status: run.Status, Time: time.Now()})
	return run, nil
}

func (e *Engine) notify(ev Event) {
	if e.Notify != nil {
		e.Notify(ev)
	}
}

// overallOutcome aggregates job outcomes: cancelled if any job was
// cancelled, failed if any job failed or was skipped off a failure,
// succeeded otherwise.
func overallOutcome(jobs []domain.JobResult) domain.Status {
	outcome := domain.StatusSucceeded
	for _, job := range jobs {
		switch job.Status {
		case domain.StatusCancelled:
			return domain.StatusCancelled
		case domain.StatusFailed, domain.StatusSkipped:
			outcome = domain.StatusFailed
		}
	}
	return outcome
}

func skippedResult(job domain.Job) domain.JobResult {
	return terminalResult(job, domain.StatusSkipped)
}

func cancelledResult(job domain.Job) domain.JobResult {
	return terminalResult(job, domain.StatusCancelled)
}

// terminalResult builds a result for a job that never ran; its steps are
// reported with the same terminal status so no step silently disappears
// from the run report.
func terminalResult(job domain.Job, status domain.Status) domain.JobResult {
	result := domain.JobResult{Name: job.Name, Status: status}
	for _, step := range job.Steps {
		result.Steps = append(result.Steps, domain.StepResult{Name: step.Name, Status: status})
	}
	return result
}
