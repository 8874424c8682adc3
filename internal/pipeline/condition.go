package pipeline

import (
	"fmt"
	"strings"
)

// Condition is a compiled step guard. Guards compare one run-scoped
// variable against a literal, e.g. `branch == main` or
// `event != pull_request`. The empty guard is always true.
type Condition struct {
	variable string
	operator string
	literal  string
	empty    bool
}

// ParseCondition compiles a guard expression. Syntax errors are caught at
// pipeline load time so a run never starts with an unevaluable guard.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Condition{empty: true}, nil
	}

	var operator string
	switch {
	case strings.Contains(expr, "!="):
		operator = "!="
	case strings.Contains(expr, "=="):
		operator = "=="
	default:
		return Condition{}, fmt.Errorf("invalid guard %q: expected <variable> == <value> or <variable> != <value>", expr)
	}

	parts := strings.SplitN(expr, operator, 2)
	variable := strings.TrimSpace(parts[0])
	literal := unquote(strings.TrimSpace(parts[1]))
	if variable == "" || literal == "" {
		return Condition{}, fmt.Errorf("invalid guard %q: empty operand", expr)
	}
	return Condition{variable: variable, operator: operator, literal: literal}, nil
}

// Eval evaluates the guard against run-scoped variables. A variable that
// is not present evaluates as the empty string.
func (c Condition) Eval(vars map[string]string) bool {
	if c.empty {
		return true
	}
	value := vars[c.variable]
	if c.operator == "!=" {
		return value != c.literal
	}
	return value == c.literal
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
