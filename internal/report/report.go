// Package report turns a finished run into machine- and human-readable
// output. All captured step output has already been redacted by the time
// it reaches this package.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/waabox/conveyor/internal/domain"
)

// JSON encodes the run report for machine consumption.
func JSON(run *domain.Run) ([]byte, error) {
	return json.MarshalIndent(run, "", "  ")
}

// Render formats the run report for human display: one line per job,
// indented lines per step, and a trailing summary.
func Render(run *domain.Run) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s  pipeline=%s  event=%s  branch=%s\n",
		run.ID, run.Pipeline, run.Event.Type, run.Event.Branch)
	for _, job := range run.Jobs {
		warn := ""
		if job.Warnings {
			warn = " (with warnings)"
		}
		fmt.Fprintf(&sb, "%s %-25s %-10s%s %s\n",
			statusIcon(job.Status), truncate(job.Name, 25), job.Status, warn, formatDuration(job.Duration))
		for _, step := range job.Steps {
			fmt.Fprintf(&sb, "  %s %-23s %-10s %s\n",
				statusIcon(step.Status), truncate(step.Name, 23), step.Status, formatDuration(step.Duration))
			if step.Error != "" {
				fmt.Fprintf(&sb, "      %s\n", step.Error)
			}
		}
	}
	fmt.Fprintf(&sb, "%s run %s in %s\n", statusIcon(run.Status), run.Status, formatDuration(run.Duration()))
	return sb.String()
}

func statusIcon(s domain.Status) string {
	switch s {
	case domain.StatusSucceeded:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	case domain.StatusRunning:
		return "●"
	case domain.StatusPending, domain.StatusReady:
		return "↷"
	case domain.StatusSkipped:
		return "»"
	case domain.StatusCancelled:
		return "○"
	default:
		return "?"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return d.Round(time.Millisecond).String()
}
