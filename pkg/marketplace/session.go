package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

var (
	ErrNotAuthenticated = errors.New("not logged in to marketplace")
	ErrSessionExpired   = errors.New("marketplace session expired")
)

// Session is the bearer token returned by login and the claims read from it.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim is at or before now. Tokens
// without exp never expire client-side.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// parseSessionToken reads the token's claims. With a key set the signature
// and time claims are verified; without one the claims are read as-is and
// the marketplace remains the authority on validity.
func parseSessionToken(token string, keySet jwk.Set, now func() time.Time) (*Session, error) {
	var (
		parsed jwt.Token
		err    error
	)
	if keySet != nil {
		parsed, err = jwt.Parse([]byte(token),
			jwt.WithKeySet(keySet),
			jwt.WithValidate(true),
			jwt.WithClock(jwt.ClockFunc(now)),
			jwt.WithAcceptableSkew(30*time.Second),
		)
	} else {
		parsed, err = jwt.ParseInsecure([]byte(token))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	session := &Session{Token: token}
	if sub, ok := parsed.Subject(); ok {
		session.Subject = sub
	}
	if exp, ok := parsed.Expiration(); ok {
		session.ExpiresAt = exp
	}
	return session, nil
}

// NewJWKCache fetches jwksURL once and keeps it refreshed for the life of ctx.
func NewJWKCache(ctx context.Context, jwksURL string, refreshInterval time.Duration) (jwk.Set, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create jwk cache: %w", err)
	}

	if err := cache.Register(ctx, jwksURL, jwk.WithConstantInterval(refreshInterval)); err != nil {
		return nil, fmt.Errorf("failed to register jwk location: %w", err)
	}

	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch jwks from %s: %w", jwksURL, err)
	}

	return cache.CachedSet(jwksURL)
}
