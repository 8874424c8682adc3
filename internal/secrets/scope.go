package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
)

// ErrNotFound is returned when a referenced secret has no value. A missing
// secret fails the job that needed it; it is never treated as empty string.
var ErrNotFound = errors.New("secret not found")

// ErrInvalidKey is returned for secret names that are not valid
// environment variable identifiers.
var ErrInvalidKey = errors.New("secret name is not a valid identifier")

// shell identifier syntax
var keyIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateKey checks that name can be injected as an environment variable.
func ValidateKey(name string) error {
	if !keyIdent.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidKey)
	}
	return nil
}

// Provider resolves named secrets at run time. Implementations must never
// log resolved values.
type Provider interface {
	Resolve(name string) (string, error)
}

// EnvProvider resolves secrets from process environment variables,
// optionally restricted to a name prefix (e.g. "CI_SECRET_").
type EnvProvider struct {
	Prefix string
}

// Resolve looks up Prefix+name in the environment. An unset variable is
// ErrNotFound; an empty-but-set variable is a valid empty secret.
func (p EnvProvider) Resolve(name string) (string, error) {
	if err := ValidateKey(name); err != nil {
		return "", err
	}
	value, ok := os.LookupEnv(p.Prefix + name)
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return value, nil
}

// StaticProvider resolves secrets from a fixed in-memory map. Used in
// tests and for API-supplied secret sets.
type StaticProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewStaticProvider creates a StaticProvider with the given values.
func NewStaticProvider(values map[string]string) *StaticProvider {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticProvider{values: copied}
}

func (p *StaticProvider) Resolve(name string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.values[name]
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return value, nil
}

// Set adds or replaces a secret value.
func (p *StaticProvider) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
}
