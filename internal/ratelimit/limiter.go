// Package ratelimit implements fixed-window request counting on top of a
// counter.Backend.
//
// Each (subject, operation class, scope) key gets one counter per aligned
// window. The window index is floor(now / window), so every process sharing a
// backend agrees on window boundaries without coordination. A caller can
// spend up to twice the budget across a boundary; that is accepted in
// exchange for one atomic increment per check.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/models"
)

// DefaultScope is the budget shared by every route that does not name its own.
const DefaultScope = "session"

// Config is one budget: at most MaxRequests per Window.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

var (
	DefaultRead   = Config{Window: time.Minute, MaxRequests: 60}
	DefaultMutate = Config{Window: time.Minute, MaxRequests: 20}
)

// ErrInvalidConfig is returned by Check for a budget that fails Validate.
var ErrInvalidConfig = errors.New("invalid rate limit config")

func (c Config) Validate() error {
	if c.Window < time.Millisecond {
		return errors.New("rate limit window must be at least 1ms")
	}
	if c.MaxRequests <= 0 {
		return errors.New("rate limit max requests must be positive")
	}
	return nil
}

// Policy holds the method-aware defaults.
type Policy struct {
	Read   Config
	Mutate Config
}

func DefaultPolicy() Policy {
	return Policy{Read: DefaultRead, Mutate: DefaultMutate}
}

// PolicyFromConfig builds the defaults from service configuration.
func PolicyFromConfig(cfg models.RateLimitConfig) Policy {
	return Policy{
		Read:   Config{Window: cfg.Window, MaxRequests: cfg.ReadRequests},
		Mutate: Config{Window: cfg.Window, MaxRequests: cfg.MutateRequests},
	}
}

func (p Policy) For(class models.OperationClass) Config {
	if class == models.OperationRead {
		return p.Read
	}
	return p.Mutate
}

// Key identifies one budget. Read and Mutate never share a counter.
type Key struct {
	Subject models.Subject
	Class   models.OperationClass
	Scope   string
}

func (k Key) String() string {
	scope := k.Scope
	if scope == "" {
		scope = DefaultScope
	}
	return fmt.Sprintf("rl:%s:%s:%s:%s", scope, k.Class, k.Subject.Kind, k.Subject.ID)
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration

	// Degraded is set when the backend failed and the request was let
	// through without being counted.
	Degraded bool
}

type Limiter struct {
	backend counter.Backend
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func NewLimiter(backend counter.Backend, opts ...Option) *Limiter {
	l := &Limiter{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request against key and reports whether it fits in cfg.
// Backend errors never deny a request: the decision comes back allowed and
// Degraded. An invalid cfg is a caller bug and returns ErrInvalidConfig.
func (l *Limiter) Check(ctx context.Context, key Key, cfg Config) (Decision, error) {
	windowMs := cfg.Window.Milliseconds()
	if windowMs <= 0 || cfg.MaxRequests <= 0 {
		return Decision{}, fmt.Errorf("%w: window %s, max requests %d", ErrInvalidConfig, cfg.Window, cfg.MaxRequests)
	}

	now := l.now()
	windowIndex := now.UnixMilli() / windowMs
	resetAt := time.UnixMilli((windowIndex + 1) * windowMs).UTC()

	count, err := l.backend.Increment(ctx, fmt.Sprintf("%s:%d", key, windowIndex), cfg.Window)
	if err != nil {
		l.logger.Warn("Rate limit check failed; allowing request",
			"key", key.String(),
			"error", err,
		)
		return Decision{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests,
			ResetAt:   resetAt,
			Degraded:  true,
		}, nil
	}

	limit := int64(cfg.MaxRequests)
	if count <= limit {
		return Decision{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: int(limit - count),
			ResetAt:   resetAt,
		}, nil
	}

	return Decision{
		Allowed:    false,
		Limit:      cfg.MaxRequests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}, nil
}
