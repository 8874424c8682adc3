package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/waabox/conveyor/internal/config"
	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/engine"
	"github.com/waabox/conveyor/internal/runner"
	"github.com/waabox/conveyor/internal/secrets"
)

func newEngine(concurrency int) (*engine.Engine, *runner.ActionRegistry) {
	actions := runner.NewActionRegistry()
	cfg := config.Default()
	cfg.MaxConcurrency = concurrency
	cfg.GracePeriod = config.Duration(100 * time.Millisecond)
	r := &runner.JobRunner{
		Executor: &runner.StepExecutor{
			Actions:     actions,
			GracePeriod: cfg.GracePeriod.Std(),
		},
		Secrets: secrets.NewStaticProvider(nil),
		Policy:  config.PolicyWarn,
	}
	return engine.New(cfg, r), actions
}

func manualEvent() domain.Event {
	return domain.Event{Type: domain.EventManual, Branch: "main"}
}

// testPublishPipeline is the canonical two-job pipeline: publish needs
// test, push restricted to main.
func testPublishPipeline(testCmd string) *domain.Pipeline {
	return &domain.Pipeline{
		Name: "build-and-publish",
		On:   []domain.TriggerRule{{Event: domain.EventPush, Branches: []string{"main"}}},
		Jobs: []domain.Job{
			{Name: "test", Steps: []domain.Step{{Name: "run tests", Run: testCmd}}},
			{Name: "publish", Needs: []string{"test"}, Steps: []domain.Step{{Name: "push image", Run: "echo pushed"}}},
		},
	}
}

func TestRun_TestThenPublishSucceeds(t *testing.T) {
	e, _ := newEngine(2)
	run, err := e.Run(context.Background(), testPublishPipeline("true"),
		domain.Event{Type: domain.EventPush, Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusSucceeded {
		t.Errorf("expected run succeeded, got %s", run.Status)
	}
	for _, name := range []string{"test", "publish"} {
		job, ok := run.Job(name)
		if !ok || job.Status != domain.StatusSucceeded {
			t.Errorf("job %s: expected succeeded, got %+v", name, job)
		}
	}
}

func TestRun_FailedTestSkipsPublish(t *testing.T) {
	e, _ := newEngine(2)
	run, err := e.Run(context.Background(), testPublishPipeline("exit 1"),
		domain.Event{Type: domain.EventPush, Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusFailed {
		t.Errorf("expected run failed, got %s", run.Status)
	}
	testJob, _ := run.Job("test")
	if testJob.Status != domain.StatusFailed {
		t.Errorf("test job: expected failed, got %s", testJob.Status)
	}
	publish, _ := run.Job("publish")
	if publish.Status != domain.StatusSkipped {
		t.Errorf("publish job: expected skipped, never %s", publish.Status)
	}
	// Skipped jobs still report their steps.
	if len(publish.Steps) != 1 || publish.Steps[0].Status != domain.StatusSkipped {
		t.Errorf("expected skipped step detail, got %+v", publish.Steps)
	}
}

func TestRun_TriggerRejectedProducesNoRun(t *testing.T) {
	e, _ := newEngine(2)
	run, err := e.Run(context.Background(), testPublishPipeline("true"),
		domain.Event{Type: domain.EventPush, Branch: "feature-x"})
	if !errors.Is(err, domain.ErrTriggerRejected) {
		t.Fatalf("expected ErrTriggerRejected, got %v", err)
	}
	if run != nil {
		t.Errorf("no run report may exist for a rejected event, got %+v", run)
	}
}

func TestRun_CyclicGraphIsConfigurationError(t *testing.T) {
	e, actions := newEngine(2)
	var ran bool
	actions.Register("probe", runner.ActionFunc(func(ctx context.Context, inv runner.ActionContext) error {
		ran = true
		return nil
	}))
	p := &domain.Pipeline{
		Name: "cyclic",
		Jobs: []domain.Job{
			{Name: "a", Needs: []string{"b"}, Steps: []domain.Step{{Name: "s", Uses: "probe"}}},
			{Name: "b", Needs: []string{"a"}, Steps: []domain.Step{{Name: "s", Uses: "probe"}}},
		},
	}
	run, err := e.Run(context.Background(), p, manualEvent())
	var confErr *domain.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if run != nil {
		t.Error("no run may be created for a cyclic pipeline")
	}
	if ran {
		t.Error("no job may start when the graph is cyclic")
	}
}

func TestRun_EveryJobReachesATerminalState(t *testing.T) {
	e, _ := newEngine(3)
	p := &domain.Pipeline{
		Name: "diamond",
		Jobs: []domain.Job{
			{Name: "build", Steps: []domain.Step{{Name: "s", Run: "true"}}},
			{Name: "test", Needs: []string{"build"}, Steps: []domain.Step{{Name: "s", Run: "true"}}},
			{Name: "lint", Needs: []string{"build"}, Steps: []domain.Step{{Name: "s", Run: "true"}}},
			{Name: "publish", Needs: []string{"test", "lint"}, Steps: []domain.Step{{Name: "s", Run: "true"}}},
		},
	}
	run, err := e.Run(context.Background(), p, manualEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Jobs) != 4 {
		t.Fatalf("expected 4 job results, got %d", len(run.Jobs))
	}
	for _, job := range run.Jobs {
		if !job.Status.Terminal() {
			t.Errorf("job %s left in non-terminal state %s", job.Name, job.Status)
		}
	}
	if run.Status != domain.StatusSucceeded {
		t.Errorf("expected run succeeded, got %s", run.Status)
	}
}

func TestRun_ConcurrencyLimitIsRespected(t *testing.T) {
	e, actions := newEngine(1)

	var mu sync.Mutex
	var active, maxActive int
	actions.Register("occupy", runner.ActionFunc(func(ctx context.Context, inv runner.ActionContext) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}))

	p := &domain.Pipeline{
		Name: "parallel",
		Jobs: []domain.Job{
			{Name: "one", Steps: []domain.Step{{Name: "s", Uses: "occupy"}}},
			{Name: "two", Steps: []domain.Step{{Name: "s", Uses: "occupy"}}},
		},
	}
	run, err := e.Run(context.Background(), p, manualEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusSucceeded {
		t.Fatalf("expected run succeeded, got %s", run.Status)
	}
	if maxActive != 1 {
		t.Errorf("concurrency limit 1 violated: %d jobs overlapped", maxActive)
	}
}

func TestRun_IndependentJobsRunInParallel(t *testing.T) {
	e, actions := newEngine(2)

	release := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(2)
	actions.Register("rendezvous", runner.ActionFunc(func(ctx context.Context, inv runner.ActionContext) error {
		arrived.Done()
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))

	// Both jobs must be inside the action at once for the waitgroup to
	// clear; that only happens if the engine dispatches them in parallel.
	go func() {
		arrived.Wait()
		close(release)
	}()

	p := &domain.Pipeline{
		Name: "parallel",
		Jobs: []domain.Job{
			{Name: "one", Steps: []domain.Step{{Name: "s", Uses: "rendezvous"}}},
			{Name: "two", Steps: []domain.Step{{Name: "s", Uses: "rendezvous"}}},
		},
	}
	run, err := e.Run(context.Background(), p, manualEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusSucceeded {
		t.Errorf("expected run succeeded, got %s", run.Status)
	}
}

func TestRun_CancellationMarksNonTerminalJobsCancelled(t *testing.T) {
	e, _ := newEngine(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	p := &domain.Pipeline{
		Name: "cancellable",
		Jobs: []domain.Job{
			{Name: "long", Steps: []domain.Step{{Name: "sleep", Run: "sleep 10"}}},
			{Name: "after", Needs: []string{"long"}, Steps: []domain.Step{{Name: "s", Run: "true"}}},
		},
	}
	run, err := e.Run(ctx, p, manualEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusCancelled {
		t.Errorf("expected run cancelled, got %s", run.Status)
	}
	long, _ := run.Job("long")
	if long.Status != domain.StatusCancelled {
		t.Errorf("running job: expected cancelled, got %s", long.Status)
	}
	after, _ := run.Job("after")
	if after.Status != domain.StatusCancelled {
		t.Errorf("pending dependent: expected cancelled, got %s", after.Status)
	}
}

func TestRun_EmitsLifecycleEvents(t *testing.T) {
	e, _ := newEngine(2)

	var mu sync.Mutex
	var events []engine.Event
	e.Notify = func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	run, err := e.Run(context.Background(), testPublishPipeline("true"),
		domain.Event{Type: domain.EventPush, Branch: "main"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if events[0].Type != engine.EventRunStarted {
		t.Errorf("first event should be run.started, got %s", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != engine.EventRunFinished || last.Status != domain.StatusSucceeded {
		t.Errorf("last event should be run.finished succeeded, got %+v", last)
	}
	finished := 0
	for _, ev := range events {
		if ev.Type == engine.EventJobFinished {
			finished++
		}
		if ev.Run != run.ID {
			t.Errorf("event carries wrong run id: %+v", ev)
		}
	}
	if finished != 2 {
		t.Errorf("expected 2 job.finished events, got %d", finished)
	}
}
