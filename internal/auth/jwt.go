package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gatekeeper/internal/models"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWKSRefreshInterval is the minimum time between JWKS fetches.
const JWKSRefreshInterval = 15 * time.Minute

// JWTProvider validates signed session tokens. Keys come from a JWKS endpoint
// (refreshed in the background) or from a shared HMAC secret.
type JWTProvider struct {
	keys       func(ctx context.Context) (jwk.Set, error)
	requireKid bool
	issuer     string
	audience   string
	cookieName string
	now        func() time.Time
}

type JWTOption func(*JWTProvider)

// WithKeySet verifies against a fixed key set instead of the configured source.
func WithKeySet(set jwk.Set) JWTOption {
	return func(p *JWTProvider) {
		p.keys = func(context.Context) (jwk.Set, error) { return set, nil }
		p.requireKid = true
	}
}

func WithClock(now func() time.Time) JWTOption {
	return func(p *JWTProvider) {
		p.now = now
	}
}

// NewJWTProvider builds a provider from cfg. With a JWKS URL the first fetch
// happens here, so a misconfigured endpoint fails at startup.
func NewJWTProvider(ctx context.Context, cfg models.AuthConfig, opts ...JWTOption) (*JWTProvider, error) {
	p := &JWTProvider{
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		cookieName: cfg.CookieName,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.keys != nil {
		return p, nil
	}

	switch {
	case cfg.JWKSURL != "":
		cache := jwk.NewCache(ctx)
		if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(JWKSRefreshInterval)); err != nil {
			return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
		}
		if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
		}
		url := cfg.JWKSURL
		p.keys = func(ctx context.Context) (jwk.Set, error) {
			return cache.Get(ctx, url)
		}
		p.requireKid = true

	case cfg.JWTSecret != "":
		set, err := secretKeySet(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		p.keys = func(context.Context) (jwk.Set, error) { return set, nil }

	default:
		return nil, errors.New("either a JWKS URL or a JWT secret is required")
	}

	return p, nil
}

func secretKeySet(secret string) (jwk.Set, error) {
	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to build key from secret: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("failed to build key set: %w", err)
	}
	return set, nil
}

func (p *JWTProvider) Authenticate(r *http.Request) (*models.AuthenticatedContext, error) {
	raw, err := tokenFromRequest(r, p.cookieName)
	if err != nil {
		return nil, err
	}

	keyset, err := p.keys(r.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get signing keys: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset, jws.WithRequireKid(p.requireKid)),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(p.now)),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	user := &models.User{
		ID:    token.Subject(),
		Email: stringClaim(token, "email"),
		Role:  stringClaim(token, "role"),
	}
	return &models.AuthenticatedContext{User: user, SessionHandle: token.JwtID()}, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
