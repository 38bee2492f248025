package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/mapleandrye/backend-bakeshop/internal/common"
)

type authFixture struct {
	verifier *Verifier
	signKey  jwk.Key
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	rawKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signKey, err := jwk.FromRaw(rawKey)
	require.NoError(t, err)
	require.NoError(t, signKey.Set(jwk.KeyIDKey, "test-key-1"))
	require.NoError(t, signKey.Set(jwk.AlgorithmKey, jwa.RS256))

	publicKey, err := signKey.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(publicKey))

	jwksBody, err := json.Marshal(set)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksBody)
	}))
	t.Cleanup(srv.Close)

	return &authFixture{
		verifier: &Verifier{
			Issuer:   "https://id.example.com",
			Audience: "bakeshop",
			JWKSURL:  srv.URL,
		},
		signKey: signKey,
	}
}

func (f *authFixture) token(t *testing.T, mutate func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	builder := jwt.NewBuilder().
		Issuer("https://id.example.com").
		Audience([]string{"bakeshop"}).
		Subject("user-42").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if mutate != nil {
		builder = mutate(builder)
	}
	tok, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, f.signKey))
	require.NoError(t, err)
	return string(signed)
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	subject, err := f.verifier.Verify(context.Background(), f.token(t, nil))
	require.NoError(t, err)
	require.Equal(t, "user-42", subject)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	token := f.token(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Issuer("https://evil.example.com")
	})
	_, err := f.verifier.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	token := f.token(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Expiration(time.Now().Add(-time.Hour))
	})
	_, err := f.verifier.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	_, err := f.verifier.Verify(context.Background(), "not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuthMiddleware(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	mw := Middleware{Verifier: f.verifier}
	handler := mw.RequireAuth(http.HandlerFunc(Handler{}.Me))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/account", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, nil))
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "user-42")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatePassesAnonymousThrough(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	mw := Middleware{Verifier: f.verifier}
	var sawUser bool
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawUser = common.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sawUser)

	// a valid token attaches the user even on public routes
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, nil))
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, sawUser)
}

func TestAuthenticateWithoutVerifierPassesThrough(t *testing.T) {
	t.Parallel()

	mw := Middleware{}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
