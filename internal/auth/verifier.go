package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken covers every verification failure; callers never learn
// which check rejected the token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier validates bearer tokens minted by the external identity provider
// against its published JWKS.
type Verifier struct {
	Issuer    string
	Audience  string
	JWKSURL   string
	ClockSkew time.Duration

	mu    sync.Mutex
	cache *jwk.Cache
}

func (v *Verifier) keySet(ctx context.Context) (jwk.Set, error) {
	v.mu.Lock()
	if v.cache == nil {
		cache := jwk.NewCache(ctx)
		if err := cache.Register(v.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			v.mu.Unlock()
			return nil, fmt.Errorf("auth: register jwks: %w", err)
		}
		v.cache = cache
	}
	cache := v.cache
	v.mu.Unlock()
	return cache.Get(ctx, v.JWKSURL)
}

// Verify parses and validates a compact token, returning its subject.
func (v *Verifier) Verify(ctx context.Context, raw string) (string, error) {
	if v.JWKSURL == "" {
		return "", errors.New("auth: jwks url not configured")
	}
	set, err := v.keySet(ctx)
	if err != nil {
		return "", err
	}

	options := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}

	tok, err := jwt.ParseString(raw, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject := tok.Subject()
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return subject, nil
}
