// Package auth verifies session tokens and turns failures into abuse signals.
//
// Provider is the boundary to whatever issues sessions. JWTProvider is the
// implementation shipped here; Gate wraps any Provider and reports failed
// attempts to the block store so repeated guessing escalates to an IP block.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"gatekeeper/internal/models"
)

var (
	// ErrNoToken means the request carried no session token at all.
	ErrNoToken = errors.New("no session token")
	// ErrUnauthenticated means a token was presented and rejected.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Provider resolves the caller of a request.
type Provider interface {
	Authenticate(r *http.Request) (*models.AuthenticatedContext, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(r *http.Request) (*models.AuthenticatedContext, error)

func (f ProviderFunc) Authenticate(r *http.Request) (*models.AuthenticatedContext, error) {
	return f(r)
}

// tokenFromRequest prefers an Authorization bearer token and falls back to
// the session cookie when cookieName is set.
func tokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrUnauthenticated
		}
		return strings.TrimSpace(token), nil
	}

	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", ErrNoToken
}
