package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/engine"
)

// EventMsg wraps an engine lifecycle event for the Bubbletea loop.
// It is exported so that tests can inject events directly into Update.
type EventMsg engine.Event

// eventsClosedMsg is sent when the engine closes the event channel.
type eventsClosedMsg struct{}

type jobRow struct {
	name     string
	status   domain.Status
	started  time.Time
	duration time.Duration
}

// RunModel is the Bubbletea model for a live pipeline run: one row per
// job, updated as engine events arrive.
type RunModel struct {
	pipeline string
	runID    string
	status   domain.Status
	jobs     []jobRow
	index    map[string]int
	done     bool
	events   <-chan engine.Event
	// OnCancel is invoked when the user aborts the run (q / ctrl+c).
	OnCancel func()
}

// NewRunModel creates the live run model with one pending row per job,
// in declaration order.
func NewRunModel(p *domain.Pipeline, events <-chan engine.Event) RunModel {
	m := RunModel{
		pipeline: p.Name,
		status:   domain.StatusPending,
		index:    make(map[string]int, len(p.Jobs)),
		events:   events,
	}
	for i, job := range p.Jobs {
		m.jobs = append(m.jobs, jobRow{name: job.Name, status: domain.StatusPending})
		m.index[job.Name] = i
	}
	return m
}

// Init starts listening for engine events.
func (m RunModel) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m RunModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// Update applies one message and returns the next model.
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m = m.apply(engine.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.OnCancel != nil {
				m.OnCancel()
			}
			// Keep consuming events: the engine still reports the
			// cancelled terminal states before the channel closes.
			return m, nil
		}
	}
	return m, nil
}

// apply folds one engine event into the model.
func (m RunModel) apply(ev engine.Event) RunModel {
	switch ev.Type {
	case engine.EventRunStarted:
		m.runID = ev.Run
		m.status = domain.StatusRunning
	case engine.EventJobStarted:
		if i, ok := m.index[ev.Job]; ok {
			m.jobs[i].status = domain.StatusRunning
			m.jobs[i].started = ev.Time
		}
	case engine.EventJobFinished:
		if i, ok := m.index[ev.Job]; ok {
			m.jobs[i].status = ev.Status
			if !m.jobs[i].started.IsZero() {
				m.jobs[i].duration = ev.Time.Sub(m.jobs[i].started)
			}
		}
	case engine.EventRunFinished:
		m.status = ev.Status
		m.done = true
	}
	return m
}

// Jobs returns the current row statuses, for tests.
func (m RunModel) Jobs() map[string]domain.Status {
	statuses := make(map[string]domain.Status, len(m.jobs))
	for _, row := range m.jobs {
		statuses[row.name] = row.status
	}
	return statuses
}

// Done reports whether the run has reached a terminal state.
func (m RunModel) Done() bool {
	return m.done
}

// View renders the run header and one row per job.
func (m RunModel) View() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n\n", statusIcon(m.status), m.pipeline)
	for _, row := range m.jobs {
		duration := "--"
		if row.duration > 0 {
			duration = row.duration.Round(time.Millisecond).String()
		} else if row.status == domain.StatusRunning {
			duration = "running"
		}
		fmt.Fprintf(&sb, "  %s %-25s %s\n", statusIcon(row.status), truncate(row.name, 25), duration)
	}
	sb.WriteString("\nq: cancel run\n")
	return sb.String()
}

// Run drives the live view until the engine event channel reports the
// run finished. onCancel is called if the user aborts.
func Run(p *domain.Pipeline, events <-chan engine.Event, onCancel func()) error {
	m := NewRunModel(p, events)
	m.OnCancel = onCancel
	_, err := tea.NewProgram(m).Run()
	return err
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
