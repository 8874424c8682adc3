package secrets_test

import (
	"strings"
	"testing"

	"github.com/waabox/conveyor/internal/secrets"
)

func TestRedactor_ReplacesAllOccurrences(t *testing.T) {
	r := secrets.NewRedactor("hunter2")
	out := r.Redact("token=hunter2 retrying with hunter2 again")
	if strings.Contains(out, "hunter2") {
		t.Errorf("secret value leaked into output: %q", out)
	}
	if got, want := out, "token=*** retrying with *** again"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRedactor_CoversValuesAddedLater(t *testing.T) {
	r := secrets.NewRedactor("first")
	r.Add("second")
	out := r.Redact("first and second")
	if strings.Contains(out, "first") || strings.Contains(out, "second") {
		t.Errorf("expected both values redacted, got %q", out)
	}
}

func TestRedactor_IgnoresEmptyValues(t *testing.T) {
	r := secrets.NewRedactor("")
	if got := r.Redact("plain output"); got != "plain output" {
		t.Errorf("empty secret must not alter output, got %q", got)
	}
}
