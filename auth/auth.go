// Package auth defines the authentication collaborator contract consumed by
// the orchestrator. Credential issuance (OAuth screens, token exchange) is
// out of scope; the core only resolves an opaque credential into a
// Principal.
package auth

import (
	"context"
	"errors"

	"github.com/conciergekit/concierge/core"
)

// ErrUnauthenticated is returned when a credential is absent, malformed,
// expired or otherwise unverifiable. The orchestrator reacts by gating the
// thread behind AUTH_REQUIRED rather than failing the request.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves an opaque credential into an authenticated
// principal. Implementations must be safe for concurrent use.
type Authenticator interface {
	ResolvePrincipal(ctx context.Context, credential string) (*core.Principal, error)
}

// StaticAuthenticator resolves credentials against a fixed map. Useful for
// tests and local development.
type StaticAuthenticator struct {
	principals map[string]core.Principal
}

// NewStaticAuthenticator builds an authenticator over credential ->
// principal pairs.
func NewStaticAuthenticator(principals map[string]core.Principal) *StaticAuthenticator {
	cp := make(map[string]core.Principal, len(principals))
	for k, v := range principals {
		cp[k] = v
	}
	return &StaticAuthenticator{principals: cp}
}

// ResolvePrincipal implements Authenticator.
func (a *StaticAuthenticator) ResolvePrincipal(ctx context.Context, credential string) (*core.Principal, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}
	p, ok := a.principals[credential]
	if !ok {
		return nil, ErrUnauthenticated
	}
	return &p, nil
}
