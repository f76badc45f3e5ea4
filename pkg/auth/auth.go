package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/gridsync/gridsync/pkg/types"
)

// Policy decides whether a request may reach the data providers. It
// has exactly two variants, token-required and open access, so an
// empty-string secret can never be mistaken for a configured one.
type Policy interface {
	// Mode tags responses so downstream consumers can distinguish an
	// intentionally-open deployment from a misconfigured one.
	Mode() types.AuthMode

	// Authorize checks the presented token before any data access.
	// Fails closed: with a secret configured, a missing or mismatched
	// token is rejected with ErrUnauthorized.
	Authorize(token string) error
}

// FromSecret builds the policy for a deployment. A blank secret means
// open access; anything else requires the exact token on every
// request.
func FromSecret(secret string) Policy {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return OpenAccess()
	}
	return RequireToken(secret)
}

// RequireToken returns the fail-closed policy for the given secret.
func RequireToken(secret string) Policy {
	sum := sha256.Sum256([]byte(secret))
	return &tokenPolicy{digest: sum[:]}
}

// OpenAccess returns the policy that accepts every request.
func OpenAccess() Policy {
	return openPolicy{}
}

type tokenPolicy struct {
	// Digest of the shared secret; comparing digests keeps the
	// comparison constant-time regardless of token length.
	digest []byte
}

func (p *tokenPolicy) Mode() types.AuthMode {
	return types.AuthModeToken
}

func (p *tokenPolicy) Authorize(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing token", types.ErrUnauthorized)
	}
	sum := sha256.Sum256([]byte(token))
	if !hmac.Equal(sum[:], p.digest) {
		return fmt.Errorf("%w: token mismatch", types.ErrUnauthorized)
	}
	return nil
}

type openPolicy struct{}

func (openPolicy) Mode() types.AuthMode {
	return types.AuthModeOpen
}

func (openPolicy) Authorize(string) error {
	return nil
}
