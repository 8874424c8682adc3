// Package trigger decides whether an incoming event creates a run.
package trigger

import (
	"fmt"
	"path"

	"github.com/waabox/conveyor/internal/domain"
)

// Vars are the trigger-scoped variables resolved on accept. They feed
// step guards (`branch == main`) later in the run.
type Vars map[string]string

// Evaluate checks an event against the pipeline's trigger rules and, on
// accept, returns the trigger-scoped variables. A non-match returns
// ErrTriggerRejected; so does an event type the engine does not know —
// the evaluator fails closed. It has no side effects.
//
// A pipeline with no trigger rules accepts manual events only.
func Evaluate(rules []domain.TriggerRule, ev domain.Event) (Vars, error) {
	if !ev.Type.Known() {
		return nil, fmt.Errorf("unrecognized event type %q: %w", ev.Type, domain.ErrTriggerRejected)
	}

	if len(rules) == 0 {
		if ev.Type != domain.EventManual {
			return nil, fmt.Errorf("pipeline has no trigger rules for %s events: %w", ev.Type, domain.ErrTriggerRejected)
		}
		return vars(ev), nil
	}

	for _, rule := range rules {
		if rule.Event != ev.Type {
			continue
		}
		if matchBranch(rule.Branches, ev.Branch) {
			return vars(ev), nil
		}
	}
	return nil, fmt.Errorf("%s event on branch %q: %w", ev.Type, ev.Branch, domain.ErrTriggerRejected)
}

// matchBranch reports whether branch satisfies any of the patterns.
// Patterns use path.Match syntax ("release/*"); an empty pattern list
// matches every branch.
func matchBranch(patterns []string, branch string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
		if pattern == branch {
			return true
		}
	}
	return false
}

func vars(ev domain.Event) Vars {
	v := Vars{
		"event":  string(ev.Type),
		"branch": ev.Branch,
	}
	for k, value := range ev.Metadata {
		v[k] = value
	}
	return v
}
