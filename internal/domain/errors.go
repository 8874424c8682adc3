package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTriggerRejected is returned when an event does not match any trigger
// rule. It is a normal no-op, not a failure: no run is created. Callers
// check for it using errors.Is.
var ErrTriggerRejected = errors.New("event does not match any trigger rule")

// ConfigurationError reports a malformed pipeline: a cyclic needs graph,
// an unknown needs reference, or an invalid definition. It is fatal before
// any job starts.
type ConfigurationError struct {
	Msg string
	// Cycle holds the offending node sequence when the needs graph is
	// cyclic; the first and last entries are the same job.
	Cycle []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s", e.Msg, strings.Join(e.Cycle, " -> "))
	}
	return e.Msg
}

// Configf builds a ConfigurationError from a format string.
func Configf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
