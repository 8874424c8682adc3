package runner

import (
	"context"
	"fmt"
	"io"
)

// ActionContext carries everything an external action invocation gets
// from the engine: its parameters, the step environment, and a writer
// for output capture.
type ActionContext struct {
	With   map[string]string
	Env    map[string]string
	Stdout io.Writer
}

// Action is an opaque external action the engine can invoke as a step.
// The engine does not roll back an action's side effects.
type Action interface {
	Run(ctx context.Context, inv ActionContext) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, inv ActionContext) error

func (f ActionFunc) Run(ctx context.Context, inv ActionContext) error {
	return f(ctx, inv)
}

// ActionRegistry maps action names (e.g. "docker/build-push") to their
// implementations.
type ActionRegistry struct {
	entries map[string]Action
}

// NewActionRegistry creates an empty action registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{entries: make(map[string]Action)}
}

// Register associates an action name with an implementation. Registering
// the same name again replaces the previous implementation.
func (r *ActionRegistry) Register(name string, a Action) {
	r.entries[name] = a
}

// Lookup returns the action registered under name. Returns an error if
// no such action is registered.
func (r *ActionRegistry) Lookup(name string) (Action, error) {
	a, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("no action registered for %q", name)
	}
	return a, nil
}
