package providers

import (
	"errors"
	"testing"
)

func TestEnvCredentialSource(t *testing.T) {
	t.Setenv("DISPATCH_TEST_CREDENTIAL", "env-secret")

	source := EnvCredentialSource{}

	got, err := source.Lookup("DISPATCH_TEST_CREDENTIAL")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != "env-secret" {
		t.Errorf("Lookup() = %q, want env-secret", got)
	}

	if _, err := source.Lookup("DISPATCH_TEST_CREDENTIAL_MISSING"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Lookup() error = %v, want ErrCredentialNotFound", err)
	}
	if _, err := source.Lookup(""); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Lookup(\"\") error = %v, want ErrCredentialNotFound", err)
	}
}

func TestStaticCredentialSource(t *testing.T) {
	source := StaticCredentialSource{"key": "value"}

	got, err := source.Lookup("key")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != "value" {
		t.Errorf("Lookup() = %q, want value", got)
	}

	if _, err := source.Lookup("other"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Lookup() error = %v, want ErrCredentialNotFound", err)
	}
}
