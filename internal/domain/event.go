package domain

// EventType identifies the kind of event that can trigger a run.
type EventType string

const (
	EventPush        EventType = "push"
	EventPullRequest EventType = "pull_request"
	EventManual      EventType = "manual"
)

// Known reports whether the event type is one the engine understands.
// Unrecognized event types are rejected, never silently accepted.
func (t EventType) Known() bool {
	switch t {
	case EventPush, EventPullRequest, EventManual:
		return true
	}
	return false
}

// Event is one incoming trigger: the event type, the branch it concerns,
// and any provider metadata (commit SHA, author, ...).
type Event struct {
	Type     EventType
	Branch   string
	Metadata map[string]string
}
