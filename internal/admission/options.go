package admission

import (
	"fmt"
	"net/http"
	"time"

	"gatekeeper/internal/ratelimit"

	"github.com/gorilla/mux"
)

// ParamsFunc resolves the path parameters handed to a wrapped handler.
type ParamsFunc func(r *http.Request) (map[string]string, error)

// RouteOption customizes one wrapped route.
type RouteOption func(*route)

type route struct {
	rateLimit  *ratelimit.Config
	noLimit    bool
	scope      string
	cache      *CachePolicy
	params     ParamsFunc
	configErrs []error
}

func newRoute(opts []RouteOption) *route {
	rt := &route{
		scope:  ratelimit.DefaultScope,
		params: muxParams,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// WithRateLimit overrides the method-aware default budget for this route.
func WithRateLimit(cfg ratelimit.Config) RouteOption {
	return func(rt *route) {
		if err := cfg.Validate(); err != nil {
			rt.configErrs = append(rt.configErrs, fmt.Errorf("invalid rate limit: %w", err))
			return
		}
		rt.rateLimit = &cfg
	}
}

// WithoutRateLimit exempts the route from rate limiting. Block and suspension
// checks still apply.
func WithoutRateLimit() RouteOption {
	return func(rt *route) {
		rt.noLimit = true
	}
}

// WithScope gives the route its own counters, separate from the shared
// session scope.
func WithScope(scope string) RouteOption {
	return func(rt *route) {
		if scope == "" {
			rt.configErrs = append(rt.configErrs, fmt.Errorf("rate limit scope must not be empty"))
			return
		}
		rt.scope = scope
	}
}

// WithCache lets successful reads be cached privately by the client.
func WithCache(maxAge, staleWhileRevalidate time.Duration) RouteOption {
	return func(rt *route) {
		if maxAge < 0 || staleWhileRevalidate < 0 {
			rt.configErrs = append(rt.configErrs, fmt.Errorf("cache durations must not be negative"))
			return
		}
		rt.cache = &CachePolicy{MaxAge: maxAge, StaleWhileRevalidate: staleWhileRevalidate}
	}
}

// WithParams replaces the gorilla/mux path variable lookup.
func WithParams(fn ParamsFunc) RouteOption {
	return func(rt *route) {
		rt.params = fn
	}
}

func muxParams(r *http.Request) (map[string]string, error) {
	vars := mux.Vars(r)
	if vars == nil {
		vars = map[string]string{}
	}
	return vars, nil
}
