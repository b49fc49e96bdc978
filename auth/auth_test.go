package auth

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conciergekit/concierge/core"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator(map[string]core.Principal{
		"token-1": {Subject: "u1", Email: "u1@example.com"},
	})

	p, err := a.ResolvePrincipal(context.Background(), "token-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.Subject)

	_, err = a.ResolvePrincipal(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.ResolvePrincipal(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTAuthenticator_ValidToken(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	p, err := a.ResolvePrincipal(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.Subject)
	assert.Equal(t, "u1@example.com", p.Email)
	assert.Equal(t, "u1@example.com", p.Claims["email"])
	assert.True(t, p.Authenticated())
}

func TestJWTAuthenticator_WrongSecret(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, []byte("other-secret"), jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := a.ResolvePrincipal(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTAuthenticator_ExpiredToken(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := a.ResolvePrincipal(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTAuthenticator_MissingSubject(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"email": "u1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	_, err := a.ResolvePrincipal(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTAuthenticator_IssuerAndAudience(t *testing.T) {
	a := NewJWTAuthenticator(testSecret, func(o *JWTOptions) {
		o.Issuer = "concierge"
		o.Audience = "api"
	})

	good := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "u1",
		"iss": "concierge",
		"aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := a.ResolvePrincipal(context.Background(), good)
	require.NoError(t, err)

	wrongIssuer := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "u1",
		"iss": "someone-else",
		"aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = a.ResolvePrincipal(context.Background(), wrongIssuer)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestJWTAuthenticator_EmptyCredential(t *testing.T) {
	a := NewJWTAuthenticator(testSecret)
	_, err := a.ResolvePrincipal(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
