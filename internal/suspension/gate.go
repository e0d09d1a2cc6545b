// Package suspension answers "is this user suspended" for the admission
// pipeline. Answers are cached in the counter backend for at most CacheTTL,
// and positive answers never outlive the suspension itself. Suspend and Lift
// drop the cache entry, so on a shared backend every process sees the change
// on its next check.
package suspension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/models"
	"gatekeeper/internal/storage"

	"github.com/google/uuid"
)

const DefaultCacheTTL = 60 * time.Second

// Status is the outcome of a suspension check.
type Status struct {
	Suspended bool       `json:"suspended"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Gate struct {
	store    storage.Storage
	cache    counter.Backend
	cacheTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Gate)

func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.cacheTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func NewGate(store storage.Storage, cache counter.Backend, opts ...Option) *Gate {
	g := &Gate{
		store:    store,
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func cacheKey(userID string) string {
	return "susp:" + userID
}

// Check reports whether userID is suspended. An error means the durable store
// could not be read; cache failures fall through to the store.
func (g *Gate) Check(ctx context.Context, userID string) (Status, error) {
	now := g.now()

	if status, ok := g.cached(ctx, userID, now); ok {
		return status, nil
	}

	rec, err := g.store.ActiveSuspension(ctx, userID, now)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Status{}, fmt.Errorf("failed to check suspension for %s: %w", userID, err)
	}

	status := Status{}
	ttl := g.cacheTTL
	if rec != nil {
		status = Status{Suspended: true, Reason: rec.DisplayReason(), ExpiresAt: rec.ExpiresAt}
		if rec.ExpiresAt != nil {
			if remaining := rec.ExpiresAt.Sub(now); remaining < ttl {
				ttl = remaining
			}
		}
	}

	g.remember(ctx, userID, status, ttl)
	return status, nil
}

func (g *Gate) cached(ctx context.Context, userID string, now time.Time) (Status, bool) {
	raw, ok, err := g.cache.Get(ctx, cacheKey(userID))
	if err != nil {
		g.logger.Debug("Suspension cache read failed", "user_id", userID, "error", err)
		return Status{}, false
	}
	if !ok {
		return Status{}, false
	}

	var status Status
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return Status{}, false
	}
	if status.Suspended && status.ExpiresAt != nil && !status.ExpiresAt.After(now) {
		return Status{}, false
	}
	return status, true
}

func (g *Gate) remember(ctx context.Context, userID string, status Status, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(userID), string(data), ttl); err != nil {
		g.logger.Debug("Suspension cache write failed", "user_id", userID, "error", err)
	}
}

func (g *Gate) invalidate(ctx context.Context, userID string) {
	if err := g.cache.Delete(ctx, cacheKey(userID)); err != nil {
		// The entry ages out within the cache TTL.
		g.logger.Warn("Failed to invalidate suspension cache", "user_id", userID, "error", err)
	}
}

// Suspend records a new suspension and takes effect on the next check.
func (g *Gate) Suspend(ctx context.Context, req models.SuspendRequest, suspendedBy string) (*models.SuspensionRecord, error) {
	req.Normalize()
	now := g.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	rec := &models.SuspensionRecord{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Reason:      req.Reason,
		SuspendedBy: suspendedBy,
		SuspendedAt: now,
		ExpiresAt:   req.ExpiresAt,
	}
	if err := g.store.SaveSuspension(ctx, rec); err != nil {
		return nil, err
	}

	g.invalidate(ctx, req.UserID)
	g.logger.Info("User suspended", "user_id", rec.UserID, "suspended_by", suspendedBy, "suspension_id", rec.ID)
	return rec, nil
}

// Lift ends every open suspension of userID. It returns storage.ErrNotFound
// when there was nothing to lift.
func (g *Gate) Lift(ctx context.Context, userID string) (int, error) {
	n, err := g.store.LiftSuspension(ctx, userID, g.now())
	if err != nil {
		return 0, err
	}

	g.invalidate(ctx, userID)
	g.logger.Info("Suspension lifted", "user_id", userID, "count", n)
	return n, nil
}

// History returns every suspension of userID, newest first.
func (g *Gate) History(ctx context.Context, userID string) ([]*models.SuspensionRecord, error) {
	return g.store.Suspensions(ctx, userID)
}
