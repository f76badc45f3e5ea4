package auth

import (
	"errors"
	"testing"

	"github.com/gridsync/gridsync/pkg/types"
)

func TestFromSecret_BlankMeansOpen(t *testing.T) {
	for _, secret := range []string{"", "   ", "\t\n"} {
		policy := FromSecret(secret)
		if policy.Mode() != types.AuthModeOpen {
			t.Errorf("secret %q: expected open mode, got %s", secret, policy.Mode())
		}
		if err := policy.Authorize(""); err != nil {
			t.Errorf("secret %q: open policy rejected a request: %v", secret, err)
		}
	}
}

func TestFromSecret_ConfiguredMeansToken(t *testing.T) {
	policy := FromSecret("s3cret")
	if policy.Mode() != types.AuthModeToken {
		t.Fatalf("expected token mode, got %s", policy.Mode())
	}
}

func TestRequireToken_FailsClosed(t *testing.T) {
	policy := RequireToken("s3cret")

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{name: "exact match", token: "s3cret", ok: true},
		{name: "surrounding whitespace trimmed", token: "  s3cret  ", ok: true},
		{name: "missing", token: "", ok: false},
		{name: "wrong", token: "guess", ok: false},
		{name: "prefix of secret", token: "s3cre", ok: false},
		{name: "secret plus suffix", token: "s3cret1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Authorize(tt.token)
			if tt.ok && err != nil {
				t.Errorf("expected token to be accepted, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected rejection")
				}
				if !errors.Is(err, types.ErrUnauthorized) {
					t.Errorf("expected ErrUnauthorized, got %v", err)
				}
			}
		})
	}
}

func TestOpenAccess_AcceptsEverything(t *testing.T) {
	policy := OpenAccess()
	for _, token := range []string{"", "anything", "s3cret"} {
		if err := policy.Authorize(token); err != nil {
			t.Errorf("open policy rejected token %q: %v", token, err)
		}
	}
}
