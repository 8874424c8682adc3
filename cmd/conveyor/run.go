package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waabox/conveyor/internal/config"
	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/engine"
	"github.com/waabox/conveyor/internal/git"
	"github.com/waabox/conveyor/internal/logging"
	"github.com/waabox/conveyor/internal/pipeline"
	"github.com/waabox/conveyor/internal/report"
	"github.com/waabox/conveyor/internal/runner"
	"github.com/waabox/conveyor/internal/secrets"
	"github.com/waabox/conveyor/internal/store"
	"github.com/waabox/conveyor/internal/tui"
)

type runOptions struct {
	file          string
	event         string
	branch        string
	meta          []string
	configPath    string
	secretsPrefix string
	jsonOutput    bool
	watch         bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline for one event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "pipeline.yml", "pipeline definition file")
	cmd.Flags().StringVar(&opts.event, "event", string(domain.EventManual), "triggering event type (push, pull_request, manual)")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "branch the event concerns (default: current git branch)")
	cmd.Flags().StringArrayVar(&opts.meta, "meta", nil, "event metadata as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(), "engine config file")
	cmd.Flags().StringVar(&opts.secretsPrefix, "secrets-prefix", "", "environment variable prefix for secret resolution")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "emit the run report as JSON")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "show a live run view while jobs execute")
	return cmd
}

func runPipeline(ctx context.Context, opts runOptions) error {
	log := logging.New("conveyor")
	ctx = logging.IntoContext(ctx, log)

	cfg, err := config.LoadFrom(ctx, opts.configPath)
	if err != nil {
		return err
	}

	p, err := pipeline.Load(opts.file)
	if err != nil {
		return err
	}

	ev, err := buildEvent(opts)
	if err != nil {
		return err
	}

	// An interrupt turns into run cancellation: non-terminal jobs are
	// cancelled and in-flight steps get the grace period to stop.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobRunner := &runner.JobRunner{
		Executor: &runner.StepExecutor{
			Actions:        runner.NewActionRegistry(),
			DefaultTimeout: cfg.StepTimeout.Std(),
			GracePeriod:    cfg.GracePeriod.Std(),
		},
		Secrets: secrets.EnvProvider{Prefix: opts.secretsPrefix},
		Policy:  cfg.ContinueOnError,
	}
	eng := engine.New(cfg, jobRunner)

	var run *domain.Run
	var runErr error
	if opts.watch {
		run, runErr = runWithWatch(ctx, stop, eng, p, ev)
	} else {
		run, runErr = eng.Run(ctx, p, ev)
	}

	if errors.Is(runErr, domain.ErrTriggerRejected) {
		// A non-matching event is a normal no-op, not a failure.
		log.Info("event does not match trigger rules, nothing to do",
			"event", ev.Type, "branch", ev.Branch)
		return nil
	}
	if runErr != nil {
		return runErr
	}

	if cfg.ArchivePath != "" {
		if err := archiveRun(cfg.ArchivePath, run); err != nil {
			log.Warn("could not archive run", "error", err)
		}
	}

	if opts.jsonOutput {
		data, err := report.JSON(run)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(report.Render(run))
	}

	switch run.Status {
	case domain.StatusSucceeded:
		return nil
	case domain.StatusCancelled:
		return errRunCancelled
	default:
		return errRunFailed
	}
}

// runWithWatch runs the engine in the background while the live view
// consumes its event stream in the foreground.
func runWithWatch(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, p *domain.Pipeline, ev domain.Event) (*domain.Run, error) {
	events := make(chan engine.Event, 64)
	eng.Notify = func(e engine.Event) { events <- e }

	type outcome struct {
		run *domain.Run
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		run, err := eng.Run(ctx, p, ev)
		close(events)
		done <- outcome{run, err}
	}()

	if err := tui.Run(p, events, cancel); err != nil {
		return nil, fmt.Errorf("live view failed: %w", err)
	}
	result := <-done
	return result.run, result.err
}

func archiveRun(path string, run *domain.Run) error {
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(run)
}

func buildEvent(opts runOptions) (domain.Event, error) {
	ev := domain.Event{
		Type:   domain.EventType(opts.event),
		Branch: opts.branch,
	}
	if ev.Branch == "" {
		cwd, err := os.Getwd()
		if err == nil {
			if branch, err := git.DetectBranch(cwd); err == nil {
				ev.Branch = branch
			}
		}
	}
	for _, kv := range opts.meta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return domain.Event{}, fmt.Errorf("invalid --meta %q: expected key=value", kv)
		}
		if ev.Metadata == nil {
			ev.Metadata = make(map[string]string)
		}
		ev.Metadata[k] = v
	}
	return ev, nil
}
