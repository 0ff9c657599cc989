package providers

import (
	"fmt"
	"os"
)

// CredentialSource resolves a credential reference into a secret value.
// It is injected at startup; the dispatch core never persists raw
// credentials itself.
type CredentialSource interface {
	// Lookup resolves the named credential. It returns
	// ErrCredentialNotFound (possibly wrapped) when the reference cannot
	// be resolved.
	Lookup(ref string) (string, error)
}

// EnvCredentialSource resolves credential references as environment
// variable names. This is the default source for dispatchd deployments,
// where secrets are injected into the process environment.
type EnvCredentialSource struct{}

// Lookup returns the value of the environment variable named by ref.
func (EnvCredentialSource) Lookup(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty credential reference: %w", ErrCredentialNotFound)
	}
	val, ok := os.LookupEnv(ref)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q: %w", ref, ErrCredentialNotFound)
	}
	return val, nil
}

// StaticCredentialSource resolves credentials from a fixed map. It is used
// in tests and by callers that manage secrets through their own store.
type StaticCredentialSource map[string]string

// Lookup returns the mapped value for ref.
func (s StaticCredentialSource) Lookup(ref string) (string, error) {
	val, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("credential %q: %w", ref, ErrCredentialNotFound)
	}
	return val, nil
}
