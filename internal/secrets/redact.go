package secrets

import (
	"strings"
	"sync"
)

// Mask is the replacement written in place of secret values.
const Mask = "***"

// Redactor replaces known secret values in captured output before it is
// stored anywhere. New values can be added as steps resolve more secrets;
// redaction always covers every value seen so far in the run. Safe for
// concurrent use by parallel job runners.
type Redactor struct {
	mu     sync.RWMutex
	values []string
}

// NewRedactor creates a Redactor covering the given secret values.
func NewRedactor(values ...string) *Redactor {
	r := &Redactor{}
	r.Add(values...)
	return r
}

// Add registers additional secret values for redaction. Empty values are
// ignored since replacing the empty string would corrupt output.
func (r *Redactor) Add(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range values {
		if v == "" {
			continue
		}
		r.values = append(r.values, v)
	}
}

// Redact returns s with every known secret value replaced by Mask.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, Mask)
	}
	return s
}
