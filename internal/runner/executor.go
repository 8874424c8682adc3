package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/logging"
	"github.com/waabox/conveyor/internal/secrets"
)

// retryDelay is the fixed pause between attempts of a step that declares
// retries.
const retryDelay = time.Second

// StepExecutor runs a single step: a shell command or an external action.
// It guarantees output capture and a step result even when the underlying
// work aborts abnormally; it never crashes the calling job runner.
type StepExecutor struct {
	// Actions resolves `uses:` steps.
	Actions *ActionRegistry
	// DefaultTimeout applies to steps without their own timeout.
	// Zero means no limit.
	DefaultTimeout time.Duration
	// GracePeriod is how long a terminated command may linger after
	// SIGTERM before it is force-killed.
	GracePeriod time.Duration
}

// Execute runs one step with the given environment. Captured output is
// passed through the redactor before it is stored in the result, so
// secret values never reach the report even when a command echoes them.
//
// Steps with a retry count are re-attempted with a fixed delay; the
// returned result reflects the last attempt.
func (e *StepExecutor) Execute(ctx context.Context, step domain.Step, env map[string]string, red *secrets.Redactor) domain.StepResult {
	var result domain.StepResult
	attempts := uint(step.Retries) + 1

	// retry-go drives re-attempts; the result of the final attempt is
	// what gets reported.
	_ = retry.Do(
		func() error {
			result = e.executeOnce(ctx, step, env, red)
			if result.Status == domain.StatusFailed {
				return errors.New(result.Error)
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return result
}

func (e *StepExecutor) executeOnce(ctx context.Context, step domain.Step, env map[string]string, red *secrets.Redactor) domain.StepResult {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	var result domain.StepResult
	if step.IsAction() {
		result = e.runAction(ctx, step, env, red)
	} else {
		result = e.runCommand(ctx, step, env, red)
	}
	result.Name = step.Name
	result.Duration = time.Since(start)
	return result
}

func (e *StepExecutor) runCommand(ctx context.Context, step domain.Step, env map[string]string, red *secrets.Redactor) domain.StepResult {
	cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
	cmd.Env = flattenEnv(env)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	// On cancellation, ask politely first; WaitDelay escalates to a
	// forced kill once the grace period expires.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.GracePeriod

	err := cmd.Run()
	result := domain.StepResult{Output: red.Redact(buf.String())}

	switch {
	case err == nil:
		result.Status = domain.StatusSucceeded
	case ctx.Err() == context.Canceled:
		result.Status = domain.StatusCancelled
		result.ExitCode = exitCode(cmd, err)
		result.Error = "cancelled"
	case ctx.Err() == context.DeadlineExceeded:
		result.Status = domain.StatusFailed
		result.ExitCode = exitCode(cmd, err)
		result.Error = fmt.Sprintf("step timed out after %s", stepTimeout(step, e.DefaultTimeout))
	default:
		result.Status = domain.StatusFailed
		result.ExitCode = exitCode(cmd, err)
		result.Error = red.Redact(err.Error())
	}

	logging.FromContext(ctx).Debug("step command finished",
		"step", step.Name, "status", result.Status, "exit_code", result.ExitCode)
	return result
}

func (e *StepExecutor) runAction(ctx context.Context, step domain.Step, env map[string]string, red *secrets.Redactor) domain.StepResult {
	var buf bytes.Buffer
	result := domain.StepResult{}

	action, err := e.Actions.Lookup(step.Uses)
	if err != nil {
		result.Status = domain.StatusFailed
		result.ExitCode = 1
		result.Error = err.Error()
		return result
	}

	err = invokeAction(ctx, action, ActionContext{
		With:   step.With,
		Env:    env,
		Stdout: &buf,
	})

	result.Output = red.Redact(buf.String())
	switch {
	case err == nil:
		result.Status = domain.StatusSucceeded
	case ctx.Err() == context.Canceled:
		result.Status = domain.StatusCancelled
		result.ExitCode = 1
		result.Error = "cancelled"
	default:
		result.Status = domain.StatusFailed
		result.ExitCode = 1
		result.Error = red.Redact(err.Error())
	}
	return result
}

// invokeAction shields the executor from panicking actions: abnormal
// termination maps to a failed step, not a crashed runner.
func invokeAction(ctx context.Context, action Action, inv ActionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action aborted: %v", r)
		}
	}()
	return action.Run(ctx, inv)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func stepTimeout(step domain.Step, fallback time.Duration) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return fallback
}

func flattenEnv(env map[string]string) []string {
	flat := make([]string, 0, len(env))
	for k, v := range env {
		flat = append(flat, k+"="+v)
	}
	return flat
}
