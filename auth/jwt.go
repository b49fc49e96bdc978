package auth

import (
	"context"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/conciergekit/concierge/core"
)

// JWTOptions configures the JWT authenticator.
type JWTOptions struct {
	// Issuer is the expected iss claim. If empty, the issuer is not
	// validated.
	Issuer string

	// Audience is the expected aud claim. If empty, the audience is not
	// validated.
	Audience string

	// EmailClaim is the claim carrying the user's email address.
	// Default: "email".
	EmailClaim string

	// Leeway applied to exp/nbf validation. Default: 30s.
	Leeway time.Duration
}

// JWTAuthenticator validates HS256-signed tokens against a shared secret
// and maps their claims to a Principal.
type JWTAuthenticator struct {
	secret []byte
	opts   JWTOptions
}

// NewJWTAuthenticator creates a JWT authenticator using the given signing
// secret.
func NewJWTAuthenticator(secret []byte, optFns ...func(o *JWTOptions)) *JWTAuthenticator {
	opts := JWTOptions{
		EmailClaim: "email",
		Leeway:     30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &JWTAuthenticator{secret: secret, opts: opts}
}

// ResolvePrincipal implements Authenticator. It parses and verifies the
// token, requires a subject, and copies string claims into the principal
// for downstream policy checks.
func (a *JWTAuthenticator) ResolvePrincipal(ctx context.Context, credential string) (*core.Principal, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	token, err := jwtlib.Parse(credential, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, a.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrUnauthenticated)
	}

	subject := claimString(claims, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrUnauthenticated)
	}

	principal := &core.Principal{
		Subject: subject,
		Email:   claimString(claims, a.opts.EmailClaim),
		Claims:  make(map[string]string),
	}
	for k, v := range claims {
		if s, ok := v.(string); ok {
			principal.Claims[k] = s
		}
	}

	return principal, nil
}

func (a *JWTAuthenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithLeeway(a.opts.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if a.opts.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.opts.Issuer))
	}
	if a.opts.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.opts.Audience))
	}
	return opts
}

func claimString(claims jwtlib.MapClaims, name string) string {
	if v, ok := claims[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
