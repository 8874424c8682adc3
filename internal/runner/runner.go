// Package runner executes jobs and their steps.
package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/waabox/conveyor/internal/config"
	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/logging"
	"github.com/waabox/conveyor/internal/pipeline"
	"github.com/waabox/conveyor/internal/secrets"
)

// JobRunner executes one job's steps strictly in order and reports the
// job's terminal status exactly once.
type JobRunner struct {
	Executor *StepExecutor
	Secrets  secrets.Provider
	// Policy decides the outcome of a job that tolerated a step failure
	// via continue-on-error: warn keeps the job succeeded (with a
	// warnings marker), fail still fails it once all steps have run.
	Policy config.ContinueOnErrorPolicy
}

// Run executes the job. globalEnv is the pipeline-level environment;
// vars are the run-scoped variables guards are evaluated against. The
// redactor is shared across the run so every captured output is scrubbed
// of all secret values resolved so far.
func (r *JobRunner) Run(ctx context.Context, job domain.Job, globalEnv map[string]string, vars map[string]string, red *secrets.Redactor) domain.JobResult {
	log := logging.FromContext(ctx).With("job", job.Name)
	start := time.Now()

	result := domain.JobResult{Name: job.Name}
	var failed, warnings, cancelled bool

	for i := 0; i < len(job.Steps); i++ {
		step := job.Steps[i]

		if cancelled || failed {
			break
		}

		cond, err := pipeline.ParseCondition(step.If)
		if err != nil {
			// Guards are validated at load time; an unevaluable guard
			// here means the job was built outside the loader.
			result.Steps = append(result.Steps, domain.StepResult{
				Name: step.Name, Status: domain.StatusFailed, ExitCode: 1,
				Error: fmt.Sprintf("invalid guard: %v", err),
			})
			failed = true
			continue
		}
		if !cond.Eval(vars) {
			log.Debug("guard false, skipping step", "step", step.Name, "if", step.If)
			result.Steps = append(result.Steps, domain.StepResult{
				Name: step.Name, Status: domain.StatusSkipped,
			})
			continue
		}

		env, err := r.stepEnv(job, step, globalEnv, red)
		if err != nil {
			log.Error("secret resolution failed", "step", step.Name, "error", err)
			result.Steps = append(result.Steps, domain.StepResult{
				Name: step.Name, Status: domain.StatusFailed, ExitCode: 1,
				Error: err.Error(),
			})
			failed = true
			continue
		}

		log.Info("running step", "step", step.Name)
		stepResult := r.Executor.Execute(ctx, step, env, red)
		result.Steps = append(result.Steps, stepResult)

		switch stepResult.Status {
		case domain.StatusCancelled:
			cancelled = true
		case domain.StatusFailed:
			if step.ContinueOnError {
				log.Warn("step failed but is marked continue-on-error", "step", step.Name)
				warnings = true
			} else {
				log.Error("step failed", "step", step.Name, "exit_code", stepResult.ExitCode)
				failed = true
			}
		}
	}

	// Steps never reached end up skipped so the report accounts for
	// every declared step.
	for i := len(result.Steps); i < len(job.Steps); i++ {
		status := domain.StatusSkipped
		if cancelled {
			status = domain.StatusCancelled
		}
		result.Steps = append(result.Steps, domain.StepResult{
			Name: job.Steps[i].Name, Status: status,
		})
	}

	switch {
	case cancelled:
		result.Status = domain.StatusCancelled
	case failed:
		result.Status = domain.StatusFailed
	case warnings && r.Policy == config.PolicyFail:
		result.Status = domain.StatusFailed
		result.Warnings = true
	default:
		result.Status = domain.StatusSucceeded
		result.Warnings = warnings
	}
	result.Duration = time.Since(start)

	log.Info("job finished", "status", result.Status, "duration", result.Duration)
	return result
}

// stepEnv layers the step environment: process env, then pipeline env,
// then job env, then step env, then resolved secrets. Secrets are
// resolved only for steps that declare them and are added to the shared
// redactor before any output can be captured.
func (r *JobRunner) stepEnv(job domain.Job, step domain.Step, globalEnv map[string]string, red *secrets.Redactor) (map[string]string, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for k, v := range globalEnv {
		env[k] = v
	}
	for k, v := range job.Env {
		env[k] = v
	}
	for k, v := range step.Env {
		env[k] = v
	}
	for _, name := range step.Secrets {
		value, err := r.Secrets.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("resolving secret %s: %w", name, err)
		}
		red.Add(value)
		env[name] = value
	}
	return env, nil
}
